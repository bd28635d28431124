package utils

// ContextKey namespaces request-scoped values stored in a context.Context
type ContextKey string

// Request-scoped context keys set by the HTTP handlers
const (
	RequestIDKey ContextKey = "request_id"
	UserAgentKey ContextKey = "user_agent"
	IPAddressKey ContextKey = "ip_address"
	EndpointKey  ContextKey = "endpoint"
	TimeoutKey   ContextKey = "timeout"
)
