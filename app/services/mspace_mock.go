package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/google/uuid"
)

// MockMspaceCall is one recorded call against MockMspaceClient
type MockMspaceCall struct {
	Operation string
	Username  string
	SenderID  string
	Recipient string
	Message   string
	Target    string
	Count     int
	At        time.Time
}

// MockMspaceClient implements MspaceClient in memory for local runs and tests
type MockMspaceClient struct {
	mu sync.Mutex

	Balance         int64
	SubUsers        []AccountBalance
	ResellerClients []AccountBalance

	// SendFunc scripts SendText per recipient. Nil means every send succeeds.
	SendFunc func(recipient string) (*SendTextResult, error)
	// Err is returned by every call when set
	Err      error
	LoginErr error
	TopUpErr error

	calls []MockMspaceCall
}

// NewMockMspaceClient creates a mock provider with a starting balance
func NewMockMspaceClient(balance int64) *MockMspaceClient {
	return &MockMspaceClient{Balance: balance}
}

func (m *MockMspaceClient) record(call MockMspaceCall) {
	call.At = utils.UTCNow()
	m.calls = append(m.calls, call)
}

func (m *MockMspaceClient) QueryBalance(ctx context.Context, cred MspaceCredentials) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(MockMspaceCall{Operation: "balance", Username: cred.Username})
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Balance, nil
}

func (m *MockMspaceClient) QueryBalanceV2(ctx context.Context, cred MspaceCredentials) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(MockMspaceCall{Operation: "balance_v2", Username: cred.Username})
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Balance, nil
}

func (m *MockMspaceClient) SendText(ctx context.Context, cred MspaceCredentials, senderID, recipient, message string) (*SendTextResult, error) {
	m.mu.Lock()
	m.record(MockMspaceCall{Operation: "sendtext", Username: cred.Username, SenderID: senderID, Recipient: recipient, Message: message})
	sendFunc, err := m.SendFunc, m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, &ProviderError{Kind: ErrorKindTransport, Message: "provider unreachable", Err: ctx.Err()}
	}
	if sendFunc != nil {
		return sendFunc(recipient)
	}

	m.mu.Lock()
	m.Balance--
	m.mu.Unlock()
	log.Printf("mock SMS sent to %s", recipient)
	return &SendTextResult{
		MessageID:    uuid.NewString(),
		Status:       "Delivered",
		ResponseTime: utils.UTCNow().Format(time.RFC3339),
		Delivered:    true,
	}, nil
}

func (m *MockMspaceClient) QuerySubUsers(ctx context.Context, cred MspaceCredentials) ([]AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(MockMspaceCall{Operation: "subusers", Username: cred.Username})
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]AccountBalance(nil), m.SubUsers...), nil
}

func (m *MockMspaceClient) QueryResellerClients(ctx context.Context, cred MspaceCredentials) ([]AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(MockMspaceCall{Operation: "resellerclients", Username: cred.Username})
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]AccountBalance(nil), m.ResellerClients...), nil
}

func (m *MockMspaceClient) TopUpResellerClient(ctx context.Context, cred MspaceCredentials, clientName string, noOfSMS int) (string, error) {
	return m.topUp("resellerclienttopup", cred, clientName, noOfSMS)
}

func (m *MockMspaceClient) TopUpSubAccount(ctx context.Context, cred MspaceCredentials, subAccName string, noOfSMS int) (string, error) {
	return m.topUp("subacctopup", cred, subAccName, noOfSMS)
}

func (m *MockMspaceClient) topUp(op string, cred MspaceCredentials, target string, noOfSMS int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(MockMspaceCall{Operation: op, Username: cred.Username, Target: target, Count: noOfSMS})
	if m.Err != nil {
		return "", m.Err
	}
	if m.TopUpErr != nil {
		return "", m.TopUpErr
	}
	if int64(noOfSMS) > m.Balance {
		return "", ClassifyResponse("Insufficient Balance")
	}
	m.Balance -= int64(noOfSMS)
	return fmt.Sprintf("%s of %d SMS", successfulTopUpPhrase, noOfSMS), nil
}

func (m *MockMspaceClient) Login(ctx context.Context, cred MspaceCredentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(MockMspaceCall{Operation: "login", Username: cred.Username})
	if m.Err != nil {
		return m.Err
	}
	return m.LoginErr
}

// Calls returns a copy of every recorded call
func (m *MockMspaceClient) Calls() []MockMspaceCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMspaceCall(nil), m.calls...)
}

// CallCount returns how many calls of one operation were recorded
func (m *MockMspaceClient) CallCount(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}
