package businessflow

import (
	"context"
	"sync"
	"testing"

	"github.com/amirphl/mspace-dashboard/app/services"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerFixture struct {
	accounts *fakeAccountRepo
	txs      *fakeCreditTxRepo
	audit    *fakeAuditRepo
	provider *services.MockMspaceClient
	flow     *LedgerFlowImpl
}

func newLedgerFixture() *ledgerFixture {
	f := &ledgerFixture{
		accounts: newFakeAccountRepo(),
		txs:      newFakeCreditTxRepo(),
		audit:    newFakeAuditRepo(),
		provider: services.NewMockMspaceClient(500),
	}
	creds := staticCredentials{account: &ProviderAccount{Username: "acme", Password: "secret"}}
	f.flow = NewLedgerFlow(f.accounts, f.txs, f.audit, passthroughTransactor, creds, f.provider)
	return f
}

func TestLedgerFlow_Apply(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("creates the account and records before and after", func(t *testing.T) {
		f := newLedgerFixture()
		tx, err := f.flow.Apply(ctx, LedgerEntry{UserID: userID, Type: models.CreditTransactionTypeAdjustment, Amount: 100})
		require.NoError(t, err)
		assert.Equal(t, int64(0), tx.BalanceBefore)
		assert.Equal(t, int64(100), tx.BalanceAfter)
		assert.NotEqual(t, uuid.Nil, tx.UUID)

		tx, err = f.flow.Apply(ctx, LedgerEntry{UserID: userID, Type: models.CreditTransactionTypeSMSSend, Amount: -30})
		require.NoError(t, err)
		assert.Equal(t, int64(100), tx.BalanceBefore)
		assert.Equal(t, int64(70), tx.BalanceAfter)

		account, err := f.accounts.ByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(70), account.Balance)
		assert.Equal(t, int64(2), account.Version)
	})

	t.Run("balance may go negative", func(t *testing.T) {
		f := newLedgerFixture()
		tx, err := f.flow.Apply(ctx, LedgerEntry{UserID: userID, Type: models.CreditTransactionTypeSMSSend, Amount: -5})
		require.NoError(t, err)
		assert.Equal(t, int64(-5), tx.BalanceAfter)
	})

	t.Run("rejects invalid entries", func(t *testing.T) {
		f := newLedgerFixture()
		_, err := f.flow.Apply(ctx, LedgerEntry{UserID: uuid.Nil, Type: models.CreditTransactionTypeAdjustment, Amount: 1})
		assert.True(t, IsInvalidLedgerEntry(err))
		_, err = f.flow.Apply(ctx, LedgerEntry{UserID: userID, Type: "bonus", Amount: 1})
		assert.True(t, IsInvalidLedgerEntry(err))
	})

	t.Run("retries after a version conflict", func(t *testing.T) {
		f := newLedgerFixture()
		f.accounts.conflictsRemaining = 2

		tx, err := f.flow.Apply(ctx, LedgerEntry{UserID: userID, Type: models.CreditTransactionTypeAdjustment, Amount: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(10), tx.BalanceAfter)
		assert.Equal(t, 3, f.accounts.updateCalls)
		assert.Len(t, f.txs.all(), 1)
	})

	t.Run("gives up after repeated conflicts", func(t *testing.T) {
		f := newLedgerFixture()
		f.accounts.conflictsRemaining = maxLedgerAttempts

		_, err := f.flow.Apply(ctx, LedgerEntry{UserID: userID, Type: models.CreditTransactionTypeAdjustment, Amount: 10})
		assert.True(t, IsLedgerConflict(err))
		assert.Empty(t, f.txs.all())

		account, _ := f.accounts.ByUserID(ctx, userID)
		assert.Equal(t, int64(0), account.Balance)
	})
}

func TestLedgerFlow_ConcurrentApplyLosesNoUpdate(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	userID := uuid.New()

	const writers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		applied   int64
		successes int
		failures  []error
	)
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, err := f.flow.Apply(ctx, LedgerEntry{UserID: userID, Type: models.CreditTransactionTypeResellerTopUp, Amount: -amount})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			applied -= amount
			successes++
		}(int64(i))
	}
	wg.Wait()

	for _, err := range failures {
		assert.True(t, IsLedgerConflict(err), err)
	}

	account, err := f.accounts.ByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, applied, account.Balance)
	assert.Len(t, f.txs.all(), successes)

	sum, err := f.txs.SumByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Balance, sum)
}

func TestLedgerFlow_Reconcile(t *testing.T) {
	ctx := context.Background()
	owner := Actor{UserID: uuid.New(), Role: RoleUser}

	t.Run("consistent ledger", func(t *testing.T) {
		f := newLedgerFixture()
		_, err := f.flow.Apply(ctx, LedgerEntry{UserID: owner.UserID, Type: models.CreditTransactionTypeAdjustment, Amount: 50})
		require.NoError(t, err)

		resp, err := f.flow.Reconcile(ctx, owner, owner.UserID)
		require.NoError(t, err)
		assert.True(t, resp.Consistent)
		assert.Equal(t, int64(50), resp.LedgerSum)
	})

	t.Run("reports drift", func(t *testing.T) {
		f := newLedgerFixture()
		_, err := f.flow.Apply(ctx, LedgerEntry{UserID: owner.UserID, Type: models.CreditTransactionTypeAdjustment, Amount: 50})
		require.NoError(t, err)
		f.accounts.accounts[owner.UserID].Balance = 45

		admin := Actor{UserID: uuid.New(), Role: RoleAdmin}
		resp, err := f.flow.Reconcile(ctx, admin, owner.UserID)
		require.NoError(t, err)
		assert.False(t, resp.Consistent)
		assert.Equal(t, int64(-5), resp.Drift)
	})

	t.Run("other users are forbidden", func(t *testing.T) {
		f := newLedgerFixture()
		_, err := f.flow.Reconcile(ctx, Actor{UserID: uuid.New(), Role: RoleUser}, owner.UserID)
		assert.True(t, IsForbidden(err))
	})
}

func TestLedgerFlow_SyncFromProvider(t *testing.T) {
	ctx := context.Background()
	actor := Actor{UserID: uuid.New(), Role: RoleUser}
	f := newLedgerFixture()

	_, err := f.flow.Apply(ctx, LedgerEntry{UserID: actor.UserID, Type: models.CreditTransactionTypeAdjustment, Amount: 120})
	require.NoError(t, err)

	resp, err := f.flow.SyncFromProvider(ctx, actor, nil)
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, int64(500), resp.ProviderBalance)
	assert.Equal(t, int64(380), resp.Delta)

	balance, err := f.flow.Balance(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.Balance)
	assert.Contains(t, f.audit.actions(), models.AuditActionLedgerSync)

	again, err := f.flow.SyncFromProvider(ctx, actor, nil)
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Len(t, f.txs.all(), 2)
}
