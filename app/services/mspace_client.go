// Package services provides external service integrations and technical concerns like the SMS provider, tokens and caching
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/amirphl/mspace-dashboard/config"
)

const (
	maxProviderBody = 1 << 20
	maxRawErrorText = 512

	successfulTopUpPhrase = "Successful Top up"
	authFailurePhrase     = "Authentication failure"
)

// ErrorKind is the machine classification of a failed provider call
type ErrorKind string

const (
	ErrorKindTransport           ErrorKind = "transport"
	ErrorKindAuthFailure         ErrorKind = "auth_failure"
	ErrorKindNotAuthorized       ErrorKind = "not_authorized"
	ErrorKindInsufficientBalance ErrorKind = "insufficient_balance"
	ErrorKindInvalidSender       ErrorKind = "invalid_sender"
	ErrorKindUnparseable         ErrorKind = "unparseable"
	ErrorKindUnknown             ErrorKind = "unknown"
)

// errorPhrases is checked in order; the first case-insensitive substring hit wins.
var errorPhrases = []struct {
	pattern string
	kind    ErrorKind
}{
	{authFailurePhrase, ErrorKindAuthFailure},
	{"You are not Authorized", ErrorKindNotAuthorized},
	{"Insufficient Balance", ErrorKindInsufficientBalance},
	{"Invalid sender ID", ErrorKindInvalidSender},
}

// ProviderError is the single error type returned by MspaceClient
type ProviderError struct {
	Kind       ErrorKind
	Message    string
	Raw        string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mspace %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("mspace %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError extracts a ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsTransportError reports whether err means the provider could not be reached
func IsTransportError(err error) bool {
	perr, ok := AsProviderError(err)
	return ok && perr.Kind == ErrorKindTransport
}

// ClassifyResponse maps free provider text to a ProviderError. It never returns nil.
func ClassifyResponse(body string) *ProviderError {
	text := strings.TrimSpace(body)
	lower := strings.ToLower(text)
	for _, p := range errorPhrases {
		if strings.Contains(lower, strings.ToLower(p.pattern)) {
			return &ProviderError{Kind: p.kind, Message: truncate(text), Raw: truncate(text)}
		}
	}
	return &ProviderError{Kind: ErrorKindUnknown, Message: "unknown provider response", Raw: truncate(text)}
}

// IsSuccessfulTopUp reports whether a top-up response carries the provider success phrase
func IsSuccessfulTopUp(body string) bool {
	return strings.Contains(strings.ToLower(body), strings.ToLower(successfulTopUpPhrase))
}

// MspaceCredentials is one provider account. Password or APIKey may be empty.
type MspaceCredentials struct {
	Username string
	Password string
	APIKey   string
}

// SendTextResult is the first entry of the provider's send response
type SendTextResult struct {
	MessageID    string
	Status       string
	ResponseTime string
	Delivered    bool
}

// AccountBalance is a sub-user or reseller client with its SMS balance
type AccountBalance struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// MspaceClient wraps the Mspace SMS HTTP API. Every returned error is a *ProviderError.
type MspaceClient interface {
	QueryBalance(ctx context.Context, cred MspaceCredentials) (int64, error)
	QueryBalanceV2(ctx context.Context, cred MspaceCredentials) (int64, error)
	SendText(ctx context.Context, cred MspaceCredentials, senderID, recipient, message string) (*SendTextResult, error)
	QuerySubUsers(ctx context.Context, cred MspaceCredentials) ([]AccountBalance, error)
	QueryResellerClients(ctx context.Context, cred MspaceCredentials) ([]AccountBalance, error)
	TopUpResellerClient(ctx context.Context, cred MspaceCredentials, clientName string, noOfSMS int) (string, error)
	TopUpSubAccount(ctx context.Context, cred MspaceCredentials, subAccName string, noOfSMS int) (string, error)
	Login(ctx context.Context, cred MspaceCredentials) error
}

// HTTPMspaceClient implements MspaceClient over the provider's path-segment API
type HTTPMspaceClient struct {
	baseURL      string
	balanceV2URL string
	client       *http.Client
}

// NewMspaceClient creates a new provider client
func NewMspaceClient(cfg *config.MspaceConfig) *HTTPMspaceClient {
	return &HTTPMspaceClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		balanceV2URL: cfg.BalanceV2URL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type pathParam struct {
	key    string
	value  string
	secret bool
}

func credentialParams(cred MspaceCredentials) []pathParam {
	return []pathParam{
		{key: "username", value: cred.Username},
		{key: "password", value: cred.Password, secret: true},
	}
}

// endpoint builds {base}/{op}/k=v/... and a variant safe for logs
func (c *HTTPMspaceClient) endpoint(op string, params ...pathParam) (string, string) {
	var full, redacted strings.Builder
	full.WriteString(c.baseURL + "/" + op)
	redacted.WriteString(c.baseURL + "/" + op)
	for _, p := range params {
		seg := "/" + p.key + "=" + url.PathEscape(p.value)
		full.WriteString(seg)
		if p.secret {
			redacted.WriteString("/" + p.key + "=****")
		} else {
			redacted.WriteString(seg)
		}
	}
	return full.String(), redacted.String()
}

type providerResponse struct {
	statusCode int
	body       string
}

func (r providerResponse) ok() bool {
	return r.statusCode >= 200 && r.statusCode < 300
}

// failure turns a non-2xx response into a ProviderError
func (r providerResponse) failure() *ProviderError {
	perr := ClassifyResponse(r.body)
	if perr.Kind == ErrorKindUnknown {
		perr.Kind = ErrorKindTransport
		perr.Message = fmt.Sprintf("unexpected HTTP status %d", r.statusCode)
	}
	perr.StatusCode = r.statusCode
	return perr
}

func (c *HTTPMspaceClient) do(ctx context.Context, op string, req *http.Request, logURL string) (providerResponse, error) {
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		log.Printf("mspace %s request to %s failed: %v", op, logURL, err)
		return providerResponse{}, &ProviderError{Kind: ErrorKindTransport, Message: "provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return providerResponse{}, &ProviderError{Kind: ErrorKindTransport, Message: "failed to read provider response", StatusCode: resp.StatusCode, Err: err}
	}

	return providerResponse{statusCode: resp.StatusCode, body: string(body)}, nil
}

func (c *HTTPMspaceClient) get(ctx context.Context, op string, params ...pathParam) (providerResponse, error) {
	full, redacted := c.endpoint(op, params...)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return providerResponse{}, &ProviderError{Kind: ErrorKindTransport, Message: "failed to build request", Err: err}
	}
	return c.do(ctx, op, req, redacted)
}

// QueryBalance returns the account's SMS balance from the text endpoint
func (c *HTTPMspaceClient) QueryBalance(ctx context.Context, cred MspaceCredentials) (balance int64, err error) {
	defer observeProviderCall("balance", time.Now(), &err)

	resp, err := c.get(ctx, "balance", credentialParams(cred)...)
	if err != nil {
		return 0, err
	}
	if !resp.ok() {
		return 0, resp.failure()
	}

	text := strings.TrimSpace(resp.body)
	balance, perr := strconv.ParseInt(text, 10, 64)
	if perr != nil {
		return 0, ClassifyResponse(text)
	}
	return balance, nil
}

// QueryBalanceV2 returns the account's SMS balance from the JSON endpoint authenticated by API key
func (c *HTTPMspaceClient) QueryBalanceV2(ctx context.Context, cred MspaceCredentials) (balance int64, err error) {
	defer observeProviderCall("balance_v2", time.Now(), &err)

	if c.balanceV2URL == "" {
		return 0, &ProviderError{Kind: ErrorKindUnknown, Message: "balance v2 endpoint is not configured"}
	}

	payload, err := json.Marshal(map[string]string{"username": cred.Username})
	if err != nil {
		return 0, &ProviderError{Kind: ErrorKindTransport, Message: "failed to encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.balanceV2URL, bytes.NewReader(payload))
	if err != nil {
		return 0, &ProviderError{Kind: ErrorKindTransport, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", cred.APIKey)

	resp, err := c.do(ctx, "balance_v2", req, c.balanceV2URL)
	if err != nil {
		return 0, err
	}
	if !resp.ok() {
		return 0, resp.failure()
	}

	var out struct {
		Balance flexInt64 `json:"balance"`
	}
	if perr := decodeJSON(resp.body, &out); perr != nil {
		return 0, perr
	}
	return int64(out.Balance), nil
}

// SendText sends one message to one recipient
func (c *HTTPMspaceClient) SendText(ctx context.Context, cred MspaceCredentials, senderID, recipient, message string) (result *SendTextResult, err error) {
	defer observeProviderCall("sendtext", time.Now(), &err)

	params := append(credentialParams(cred),
		pathParam{key: "senderid", value: senderID},
		pathParam{key: "recipient", value: recipient},
		pathParam{key: "message", value: message},
	)
	resp, err := c.get(ctx, "sendtext", params...)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.failure()
	}

	var entries []struct {
		MessageID    flexString `json:"messageId"`
		ResponseTime flexString `json:"responseTime"`
		Status       flexString `json:"status"`
	}
	if perr := decodeJSON(resp.body, &entries); perr != nil {
		return nil, perr
	}
	if len(entries) == 0 {
		return nil, &ProviderError{Kind: ErrorKindUnparseable, Message: "empty send response", Raw: truncate(resp.body)}
	}

	first := entries[0]
	status := string(first.Status)
	if perr := ClassifyResponse(status); perr.Kind != ErrorKindUnknown {
		return nil, perr
	}

	return &SendTextResult{
		MessageID:    string(first.MessageID),
		Status:       status,
		ResponseTime: string(first.ResponseTime),
		Delivered:    strings.Contains(strings.ToLower(status), "deliver"),
	}, nil
}

// QuerySubUsers lists the sub-users of the account
func (c *HTTPMspaceClient) QuerySubUsers(ctx context.Context, cred MspaceCredentials) (balances []AccountBalance, err error) {
	defer observeProviderCall("subusers", time.Now(), &err)

	resp, err := c.get(ctx, "subusers", credentialParams(cred)...)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.failure()
	}

	var entries []struct {
		SubUserName string    `json:"subUserName"`
		SMSBalance  flexInt64 `json:"smsBalance"`
	}
	if perr := decodeJSON(resp.body, &entries); perr != nil {
		return nil, perr
	}

	balances = make([]AccountBalance, 0, len(entries))
	for _, e := range entries {
		balances = append(balances, AccountBalance{Name: e.SubUserName, Balance: int64(e.SMSBalance)})
	}
	return balances, nil
}

// QueryResellerClients lists the reseller clients of the account
func (c *HTTPMspaceClient) QueryResellerClients(ctx context.Context, cred MspaceCredentials) (balances []AccountBalance, err error) {
	defer observeProviderCall("resellerclients", time.Now(), &err)

	resp, err := c.get(ctx, "resellerclients", credentialParams(cred)...)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.failure()
	}

	var entries []struct {
		ClientName string    `json:"clientname"`
		SMSBalance flexInt64 `json:"smsBalance"`
	}
	if perr := decodeJSON(resp.body, &entries); perr != nil {
		return nil, perr
	}

	balances = make([]AccountBalance, 0, len(entries))
	for _, e := range entries {
		balances = append(balances, AccountBalance{Name: e.ClientName, Balance: int64(e.SMSBalance)})
	}
	return balances, nil
}

// TopUpResellerClient moves SMS credits to a reseller client and returns the provider confirmation
func (c *HTTPMspaceClient) TopUpResellerClient(ctx context.Context, cred MspaceCredentials, clientName string, noOfSMS int) (confirmation string, err error) {
	defer observeProviderCall("resellerclienttopup", time.Now(), &err)

	params := append(credentialParams(cred),
		pathParam{key: "clientname", value: clientName},
		pathParam{key: "noofsms", value: strconv.Itoa(noOfSMS)},
	)
	return c.topUp(ctx, "resellerclienttopup", params)
}

// TopUpSubAccount moves SMS credits to a sub-account and returns the provider confirmation
func (c *HTTPMspaceClient) TopUpSubAccount(ctx context.Context, cred MspaceCredentials, subAccName string, noOfSMS int) (confirmation string, err error) {
	defer observeProviderCall("subacctopup", time.Now(), &err)

	params := append(credentialParams(cred),
		pathParam{key: "subaccname", value: subAccName},
		pathParam{key: "noofsms", value: strconv.Itoa(noOfSMS)},
	)
	return c.topUp(ctx, "subacctopup", params)
}

func (c *HTTPMspaceClient) topUp(ctx context.Context, op string, params []pathParam) (string, error) {
	resp, err := c.get(ctx, op, params...)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", resp.failure()
	}

	text := strings.TrimSpace(resp.body)
	if !IsSuccessfulTopUp(text) {
		return "", ClassifyResponse(text)
	}
	return text, nil
}

// Login validates the credentials
func (c *HTTPMspaceClient) Login(ctx context.Context, cred MspaceCredentials) (err error) {
	defer observeProviderCall("login", time.Now(), &err)

	resp, err := c.get(ctx, "login", credentialParams(cred)...)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return resp.failure()
	}
	if strings.Contains(strings.ToLower(resp.body), strings.ToLower(authFailurePhrase)) {
		return ClassifyResponse(resp.body)
	}
	return nil
}

// decodeJSON decodes a 2xx body. Plain text is classified; broken JSON is unparseable.
func decodeJSON(body string, out any) *ProviderError {
	text := strings.TrimSpace(body)
	if !strings.HasPrefix(text, "[") && !strings.HasPrefix(text, "{") {
		return ClassifyResponse(text)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &ProviderError{Kind: ErrorKindUnparseable, Message: "failed to decode provider response", Raw: truncate(text), Err: err}
	}
	return nil
}

// truncate keeps provider text storable: valid UTF-8, at most maxRawErrorText bytes, cut on a rune boundary
func truncate(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= maxRawErrorText {
		return s
	}
	cut := maxRawErrorText
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// flexInt64 accepts 12, "12" and null
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		*f = flexInt64(n)
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q", text)
	}
	*f = flexInt64(v)
	return nil
}

// flexString accepts strings, numbers and null
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
