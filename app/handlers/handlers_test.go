package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/mspace-dashboard/app/dto"
	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Details any    `json:"details"`
	} `json:"error"`
}

var testUser = uuid.MustParse("7f3e9c1a-3b51-4a53-9d7e-1f6a4b2c8d90")

// newTestApp mounts one handler behind a stand-in for the auth middleware
func newTestApp(method, path string, handler fiber.Handler, authenticated bool) *fiber.App {
	app := fiber.New()
	app.Add([]string{method}, path, func(c fiber.Ctx) error {
		if authenticated {
			c.Locals("user_id", testUser)
			c.Locals("user_role", businessflow.RoleUser)
		}
		return c.Next()
	}, handler)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, apiBody) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parsed apiBody
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &parsed), string(raw))
	}
	return resp, parsed
}

type stubProviderFlow struct {
	businessflow.ProviderFlow
	sendFn    func(req *dto.SendSMSRequest) (*dto.ProviderResult, error)
	balanceFn func(refresh bool) (*dto.ProviderResult, error)
	gotActor  businessflow.Actor
}

func (s *stubProviderFlow) SendSMS(ctx context.Context, actor businessflow.Actor, req *dto.SendSMSRequest, metadata *businessflow.ClientMetadata) (*dto.ProviderResult, error) {
	s.gotActor = actor
	return s.sendFn(req)
}

func (s *stubProviderFlow) CheckBalance(ctx context.Context, actor businessflow.Actor, refresh bool) (*dto.ProviderResult, error) {
	return s.balanceFn(refresh)
}

func TestProviderHandlerSendSMS(t *testing.T) {
	const body = `{"recipient":"0712345678","message":"hello"}`

	t.Run("success", func(t *testing.T) {
		flow := &stubProviderFlow{sendFn: func(req *dto.SendSMSRequest) (*dto.ProviderResult, error) {
			assert.Equal(t, "0712345678", req.Recipient)
			return &dto.ProviderResult{Status: dto.ProviderStatusSuccess, Data: dto.SendSMSData{MessageID: "m-1"}}, nil
		}}
		app := newTestApp(http.MethodPost, "/sms", NewProviderHandler(flow).SendSMS, true)

		resp, parsed := do(t, app, http.MethodPost, "/sms", body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, parsed.Success)
		assert.Equal(t, testUser, flow.gotActor.UserID)
		assert.Contains(t, string(parsed.Data), `"message_id":"m-1"`)
	})

	t.Run("provider refusal is a bad gateway", func(t *testing.T) {
		flow := &stubProviderFlow{sendFn: func(req *dto.SendSMSRequest) (*dto.ProviderResult, error) {
			return &dto.ProviderResult{Status: dto.ProviderStatusError, Error: "Insufficient Balance", ErrorKind: "insufficient_balance"}, nil
		}}
		app := newTestApp(http.MethodPost, "/sms", NewProviderHandler(flow).SendSMS, true)

		resp, parsed := do(t, app, http.MethodPost, "/sms", body)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.False(t, parsed.Success)
		assert.Equal(t, "PROVIDER_ERROR", parsed.Error.Code)
		assert.Equal(t, "Insufficient Balance", parsed.Message)
	})

	t.Run("missing credentials", func(t *testing.T) {
		flow := &stubProviderFlow{sendFn: func(req *dto.SendSMSRequest) (*dto.ProviderResult, error) {
			return nil, businessflow.NewBusinessError("CREDENTIALS_NOT_CONFIGURED", "Provider credentials are not configured", businessflow.ErrCredentialsNotConfigured)
		}}
		app := newTestApp(http.MethodPost, "/sms", NewProviderHandler(flow).SendSMS, true)

		resp, parsed := do(t, app, http.MethodPost, "/sms", body)
		assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
		assert.Equal(t, "CREDENTIALS_NOT_CONFIGURED", parsed.Error.Code)
	})

	t.Run("validation", func(t *testing.T) {
		app := newTestApp(http.MethodPost, "/sms", NewProviderHandler(&stubProviderFlow{}).SendSMS, true)

		resp, parsed := do(t, app, http.MethodPost, "/sms", `{"message":"hello"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", parsed.Error.Code)
	})

	t.Run("no user in context", func(t *testing.T) {
		app := newTestApp(http.MethodPost, "/sms", NewProviderHandler(&stubProviderFlow{}).SendSMS, false)

		resp, parsed := do(t, app, http.MethodPost, "/sms", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "MISSING_USER", parsed.Error.Code)
	})
}

func TestProviderHandlerCheckBalanceRefresh(t *testing.T) {
	var got []bool
	flow := &stubProviderFlow{balanceFn: func(refresh bool) (*dto.ProviderResult, error) {
		got = append(got, refresh)
		return &dto.ProviderResult{Status: dto.ProviderStatusSuccess, Data: 10}, nil
	}}
	app := newTestApp(http.MethodGet, "/balance", NewProviderHandler(flow).CheckBalance, true)

	for _, target := range []string{"/balance", "/balance?refresh=true", "/balance?refresh=nope"} {
		resp, _ := do(t, app, http.MethodGet, target, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, []bool{false, true, false}, got)
}

type stubCampaignFlow struct {
	businessflow.CampaignFlow
	err error
}

func (s *stubCampaignFlow) GetCampaign(ctx context.Context, actor businessflow.Actor, campaignUUID string) (*dto.CampaignResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CampaignResponse{UUID: campaignUUID, Status: "draft"}, nil
}

func (s *stubCampaignFlow) StartCampaign(ctx context.Context, actor businessflow.Actor, campaignUUID string, metadata *businessflow.ClientMetadata) (*dto.CampaignResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CampaignResponse{UUID: campaignUUID, Status: "sending"}, nil
}

func TestCampaignHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found",
			err:        businessflow.NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", businessflow.ErrCampaignNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "CAMPAIGN_NOT_FOUND",
		},
		{
			name:       "access denied",
			err:        businessflow.NewBusinessError("CAMPAIGN_ACCESS_DENIED", "Campaign access denied", businessflow.ErrCampaignAccessDenied),
			wantStatus: http.StatusForbidden,
			wantCode:   "CAMPAIGN_ACCESS_DENIED",
		},
		{
			name:       "busy",
			err:        businessflow.NewBusinessError("CAMPAIGN_BUSY", "Campaign is already being sent", businessflow.ErrCampaignBusy),
			wantStatus: http.StatusConflict,
			wantCode:   "CAMPAIGN_BUSY",
		},
		{
			name:       "unexpected keeps the business code",
			err:        businessflow.NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "lookup failed", errors.New("db down")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "CAMPAIGN_LOOKUP_FAILED",
		},
		{
			name:       "plain error uses the fallback code",
			err:        errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "CAMPAIGN_SEND_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(http.MethodPost, "/campaigns/:uuid/send", NewCampaignHandler(&stubCampaignFlow{err: tt.err}).SendCampaign, true)

			resp, parsed := do(t, app, http.MethodPost, "/campaigns/"+uuid.NewString()+"/send", "")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, parsed.Error.Code)
		})
	}
}

func TestCampaignHandlerSendAccepted(t *testing.T) {
	id := uuid.NewString()
	app := newTestApp(http.MethodPost, "/campaigns/:uuid/send", NewCampaignHandler(&stubCampaignFlow{}).SendCampaign, true)

	resp, parsed := do(t, app, http.MethodPost, "/campaigns/"+id+"/send", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var data dto.CampaignResponse
	require.NoError(t, json.Unmarshal(parsed.Data, &data))
	assert.Equal(t, id, data.UUID)
	assert.Equal(t, "sending", data.Status)
}

type stubLedgerFlow struct {
	businessflow.LedgerFlow
	got *dto.ListTransactionsRequest
}

func (s *stubLedgerFlow) ListTransactions(ctx context.Context, actor businessflow.Actor, req *dto.ListTransactionsRequest) (*dto.ListTransactionsResponse, error) {
	s.got = req
	return &dto.ListTransactionsResponse{}, nil
}

func TestLedgerHandlerListTransactionsQuery(t *testing.T) {
	t.Run("parses filters", func(t *testing.T) {
		flow := &stubLedgerFlow{}
		app := newTestApp(http.MethodGet, "/tx", NewLedgerHandler(flow).ListTransactions, true)

		resp, _ := do(t, app, http.MethodGet, "/tx?type=sms_send&start_date=2026-01-01T00:00:00Z&page=2&page_size=5", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotNil(t, flow.got)
		require.NotNil(t, flow.got.Type)
		assert.Equal(t, "sms_send", *flow.got.Type)
		require.NotNil(t, flow.got.StartDate)
		assert.Equal(t, 2026, flow.got.StartDate.Year())
		assert.Nil(t, flow.got.EndDate)
		assert.Equal(t, 2, flow.got.Page)
		assert.Equal(t, 5, flow.got.PageSize)
	})

	t.Run("bad date", func(t *testing.T) {
		flow := &stubLedgerFlow{}
		app := newTestApp(http.MethodGet, "/tx", NewLedgerHandler(flow).ListTransactions, true)

		resp, parsed := do(t, app, http.MethodGet, "/tx?end_date=yesterday", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", parsed.Error.Code)
		assert.Nil(t, flow.got)
	})

	t.Run("unknown type", func(t *testing.T) {
		flow := &stubLedgerFlow{}
		app := newTestApp(http.MethodGet, "/tx", NewLedgerHandler(flow).ListTransactions, true)

		resp, _ := do(t, app, http.MethodGet, "/tx?type=gift", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Nil(t, flow.got)
	})
}

type stubHistoryFlow struct {
	businessflow.MessageHistoryFlow
}

func (stubHistoryFlow) ExportMessages(ctx context.Context, actor businessflow.Actor, req *dto.ListMessagesRequest) ([]byte, string, error) {
	return []byte("PK-fake"), "messages-20260101.xlsx", nil
}

func TestMessageHandlerExportHeaders(t *testing.T) {
	app := newTestApp(http.MethodGet, "/export", NewMessageHandler(stubHistoryFlow{}).ExportMessages, true)

	resp, _ := do(t, app, http.MethodGet, "/export", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="messages-20260101.xlsx"`, resp.Header.Get("Content-Disposition"))
}
