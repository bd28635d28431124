package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/amirphl/mspace-dashboard/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// newProviderServer serves a fixed status and body and records every request
func newProviderServer(t *testing.T, status int, body string) (*HTTPMspaceClient, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	requests := make([]recordedRequest, 0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Header: r.Header.Clone(), Body: string(raw)})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := NewMspaceClient(&config.MspaceConfig{
		BaseURL:      srv.URL + "/",
		BalanceV2URL: srv.URL + "/smsapi/v2/balance",
		Timeout:      2 * time.Second,
	})
	return client, &requests
}

var testCred = MspaceCredentials{Username: "acme", Password: "s3cret/pass", APIKey: "key-123"}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ErrorKind
	}{
		{name: "auth failure with code prefix", body: "Error 100: Authentication Failure", want: ErrorKindAuthFailure},
		{name: "not authorized", body: "you are not authorized to perform this", want: ErrorKindNotAuthorized},
		{name: "insufficient balance", body: "Insufficient Balance", want: ErrorKindInsufficientBalance},
		{name: "invalid sender", body: "  INVALID SENDER ID  ", want: ErrorKindInvalidSender},
		{name: "auth failure wins over later phrases", body: "Authentication failure; Insufficient Balance", want: ErrorKindAuthFailure},
		{name: "unknown text", body: "Something odd happened", want: ErrorKindUnknown},
		{name: "empty body", body: "", want: ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := ClassifyResponse(tt.body)
			require.NotNil(t, perr)
			assert.Equal(t, tt.want, perr.Kind)
			assert.Equal(t, strings.TrimSpace(tt.body), perr.Raw)
		})
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	long := "a" + strings.Repeat("ж", 300)
	got := truncate(long)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxRawErrorText-1)
	assert.True(t, strings.HasPrefix(long, got))

	assert.Equal(t, "short", truncate("short"))
	assert.Equal(t, "bad \uFFFD byte", truncate("bad \xff byte"))

	perr := ClassifyResponse(strings.Repeat("€", 200) + " Authentication failure")
	assert.Equal(t, ErrorKindAuthFailure, perr.Kind)
	assert.True(t, utf8.ValidString(perr.Message))
	assert.Len(t, perr.Raw, maxRawErrorText-2)
}

func TestQueryBalance(t *testing.T) {
	t.Run("numeric body", func(t *testing.T) {
		client, requests := newProviderServer(t, http.StatusOK, "4523\n")

		balance, err := client.QueryBalance(context.Background(), testCred)
		require.NoError(t, err)
		assert.Equal(t, int64(4523), balance)

		require.Len(t, *requests, 1)
		assert.Equal(t, http.MethodGet, (*requests)[0].Method)
		assert.Equal(t, "/balance/username=acme/password=s3cret%2Fpass", (*requests)[0].Path)
	})

	t.Run("authentication failure text", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, "Error 100: Authentication Failure")

		balance, err := client.QueryBalance(context.Background(), testCred)
		require.Error(t, err)
		assert.Zero(t, balance)

		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindAuthFailure, perr.Kind)
		assert.Contains(t, perr.Message, "Authentication Failure")
	})

	t.Run("non numeric body without phrase", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, "balance unavailable")

		_, err := client.QueryBalance(context.Background(), testCred)
		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindUnknown, perr.Kind)
		assert.Equal(t, "balance unavailable", perr.Raw)
	})

	t.Run("server error is transport", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusBadGateway, "upstream down")

		_, err := client.QueryBalance(context.Background(), testCred)
		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindTransport, perr.Kind)
		assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	})

	t.Run("repeated reads return the same balance", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, "77")

		first, err := client.QueryBalance(context.Background(), testCred)
		require.NoError(t, err)
		second, err := client.QueryBalance(context.Background(), testCred)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestQueryBalance_Unreachable(t *testing.T) {
	client := NewMspaceClient(&config.MspaceConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})

	_, err := client.QueryBalance(context.Background(), testCred)
	assert.True(t, IsTransportError(err))
}

func TestQueryBalance_CancelledContext(t *testing.T) {
	client, _ := newProviderServer(t, http.StatusOK, "10")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.QueryBalance(ctx, testCred)
	assert.True(t, IsTransportError(err))
}

func TestQueryBalanceV2(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int64
	}{
		{name: "number", body: `{"balance": 120}`, want: 120},
		{name: "numeric string", body: `{"balance": "98"}`, want: 98},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, requests := newProviderServer(t, http.StatusOK, tt.body)

			balance, err := client.QueryBalanceV2(context.Background(), testCred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, balance)

			req := (*requests)[0]
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "/smsapi/v2/balance", req.Path)
			assert.Equal(t, "key-123", req.Header.Get("apikey"))

			var payload map[string]string
			require.NoError(t, json.Unmarshal([]byte(req.Body), &payload))
			assert.Equal(t, "acme", payload["username"])
		})
	}

	t.Run("broken json is unparseable", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, `{"balance": `)

		_, err := client.QueryBalanceV2(context.Background(), testCred)
		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindUnparseable, perr.Kind)
	})
}

func TestSendText(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		client, requests := newProviderServer(t, http.StatusOK,
			`[{"messageId": 99812, "responseTime": "2024-01-01 10:00:00", "status": "Delivered"}]`)

		result, err := client.SendText(context.Background(), testCred, "ACME", "254712345678", "hello world")
		require.NoError(t, err)
		assert.Equal(t, "99812", result.MessageID)
		assert.Equal(t, "Delivered", result.Status)
		assert.True(t, result.Delivered)

		assert.Equal(t,
			"/sendtext/username=acme/password=s3cret%2Fpass/senderid=ACME/recipient=254712345678/message=hello%20world",
			(*requests)[0].Path)
	})

	t.Run("accepted but not delivered", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, `[{"messageId": "abc", "status": "Sent"}]`)

		result, err := client.SendText(context.Background(), testCred, "ACME", "254712345678", "hi")
		require.NoError(t, err)
		assert.False(t, result.Delivered)
	})

	t.Run("invalid sender phrase", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, "Invalid sender ID")

		_, err := client.SendText(context.Background(), testCred, "BAD", "254712345678", "hi")
		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindInvalidSender, perr.Kind)
	})

	t.Run("empty array", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, `[]`)

		_, err := client.SendText(context.Background(), testCred, "ACME", "254712345678", "hi")
		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindUnparseable, perr.Kind)
	})
}

func TestQuerySubUsersAndResellerClients(t *testing.T) {
	t.Run("sub users", func(t *testing.T) {
		client, requests := newProviderServer(t, http.StatusOK,
			`[{"subUserName": "branch-a", "smsBalance": 40}, {"subUserName": "branch-b", "smsBalance": "12"}]`)

		users, err := client.QuerySubUsers(context.Background(), testCred)
		require.NoError(t, err)
		assert.Equal(t, []AccountBalance{{Name: "branch-a", Balance: 40}, {Name: "branch-b", Balance: 12}}, users)
		assert.True(t, strings.HasPrefix((*requests)[0].Path, "/subusers/"))
	})

	t.Run("reseller clients", func(t *testing.T) {
		client, requests := newProviderServer(t, http.StatusOK, `[{"clientname": "shop", "smsBalance": 5}]`)

		clients, err := client.QueryResellerClients(context.Background(), testCred)
		require.NoError(t, err)
		assert.Equal(t, []AccountBalance{{Name: "shop", Balance: 5}}, clients)
		assert.True(t, strings.HasPrefix((*requests)[0].Path, "/resellerclients/"))
	})

	t.Run("not authorized", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, "You are not Authorized")

		_, err := client.QueryResellerClients(context.Background(), testCred)
		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindNotAuthorized, perr.Kind)
	})
}

func TestTopUp(t *testing.T) {
	t.Run("reseller success", func(t *testing.T) {
		client, requests := newProviderServer(t, http.StatusOK, "Successful Top up of 100 SMS")

		msg, err := client.TopUpResellerClient(context.Background(), testCred, "shop one", 100)
		require.NoError(t, err)
		assert.Equal(t, "Successful Top up of 100 SMS", msg)
		assert.Equal(t,
			"/resellerclienttopup/username=acme/password=s3cret%2Fpass/clientname=shop%20one/noofsms=100",
			(*requests)[0].Path)
	})

	t.Run("reseller insufficient balance", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, "Insufficient Balance")

		_, err := client.TopUpResellerClient(context.Background(), testCred, "shop", 100)
		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindInsufficientBalance, perr.Kind)
		assert.Equal(t, "Insufficient Balance", perr.Message)
	})

	t.Run("sub account success", func(t *testing.T) {
		client, requests := newProviderServer(t, http.StatusOK, "Successful Top up")

		_, err := client.TopUpSubAccount(context.Background(), testCred, "branch-a", 10)
		require.NoError(t, err)
		assert.Equal(t,
			"/subacctopup/username=acme/password=s3cret%2Fpass/subaccname=branch-a/noofsms=10",
			(*requests)[0].Path)
	})

	t.Run("sub account unknown reply", func(t *testing.T) {
		client, _ := newProviderServer(t, http.StatusOK, "Top up queued")

		_, err := client.TopUpSubAccount(context.Background(), testCred, "branch-a", 10)
		perr, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindUnknown, perr.Kind)
		assert.Equal(t, "Top up queued", perr.Raw)
	})
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
	}{
		{name: "valid", status: http.StatusOK, body: "Welcome acme"},
		{name: "rejected", status: http.StatusOK, body: "Authentication failure", wantKind: ErrorKindAuthFailure},
		{name: "unauthorized status", status: http.StatusUnauthorized, body: "", wantKind: ErrorKindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newProviderServer(t, tt.status, tt.body)

			err := client.Login(context.Background(), testCred)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			perr, ok := AsProviderError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, perr.Kind)
		})
	}
}

func TestEndpointRedactsPassword(t *testing.T) {
	client := NewMspaceClient(&config.MspaceConfig{BaseURL: "https://api.example.test/mspace"})

	full, redacted := client.endpoint("balance", credentialParams(testCred)...)
	assert.Contains(t, full, "password=s3cret%2Fpass")
	assert.NotContains(t, redacted, "s3cret")
	assert.Contains(t, redacted, "password=****")
}

func TestMockMspaceClient(t *testing.T) {
	mock := NewMockMspaceClient(50)
	ctx := context.Background()

	_, err := mock.SendText(ctx, testCred, "ACME", "254700000001", "hi")
	require.NoError(t, err)

	_, err = mock.TopUpSubAccount(ctx, testCred, "branch", 100)
	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorKindInsufficientBalance, perr.Kind)

	msg, err := mock.TopUpSubAccount(ctx, testCred, "branch", 9)
	require.NoError(t, err)
	assert.True(t, IsSuccessfulTopUp(msg))

	balance, err := mock.QueryBalance(ctx, testCred)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)
	assert.Equal(t, 1, mock.CallCount("sendtext"))
	assert.Len(t, mock.Calls(), 4)
}
