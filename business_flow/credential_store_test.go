package businessflow

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/amirphl/mspace-dashboard/app/services"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) services.CredentialCipher {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	c, err := services.NewCredentialCipher(hex.EncodeToString(key))
	require.NoError(t, err)
	return c
}

func TestCapabilityFor(t *testing.T) {
	c, err := CapabilityFor(RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, CapabilityPlatformAccount, c)

	c, err = CapabilityFor(RoleUser)
	require.NoError(t, err)
	assert.Equal(t, CapabilityTenantAccount, c)

	_, err = CapabilityFor("agency")
	assert.True(t, IsUnsupportedRole(err))
}

func TestCredentialStore_RoleDispatch(t *testing.T) {
	ctx := context.Background()
	credRepo := newFakeCredentialRepo()
	settingRepo := newFakeSettingRepo()
	store := NewCredentialStore(credRepo, settingRepo, newTestCipher(t))

	admin := Actor{UserID: uuid.New(), Role: RoleAdmin}
	user := Actor{UserID: uuid.New(), Role: RoleUser}

	platform := ProviderAccount{Username: "platform", Password: gofakeit.Password(true, true, true, false, false, 16), APIKey: gofakeit.UUID()}
	tenant := ProviderAccount{Username: gofakeit.Username(), Password: gofakeit.Password(true, true, true, false, false, 12), SenderID: "ACME"}

	require.NoError(t, store.Save(ctx, admin, platform))
	require.NoError(t, store.Save(ctx, user, tenant))

	t.Run("admin reads the platform setting", func(t *testing.T) {
		got, err := store.Load(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, platform, *got)

		setting, err := settingRepo.ByKey(ctx, models.PlatformSettingKeyMspaceCredentials)
		require.NoError(t, err)
		assert.NotContains(t, string(setting.Value), platform.Password)
	})

	t.Run("user reads its own row", func(t *testing.T) {
		got, err := store.Load(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, tenant, *got)

		row, err := credRepo.ByUserID(ctx, user.UserID)
		require.NoError(t, err)
		assert.NotEqual(t, []byte(tenant.Password), row.PasswordEncrypted)
		assert.Empty(t, row.APIKeyEncrypted)
	})

	t.Run("another user has nothing configured", func(t *testing.T) {
		_, err := store.Load(ctx, Actor{UserID: uuid.New(), Role: RoleUser})
		assert.True(t, IsCredentialsNotConfigured(err))
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		_, err := store.Load(ctx, Actor{UserID: uuid.New(), Role: "bot"})
		assert.True(t, IsUnsupportedRole(err))
		assert.True(t, IsUnsupportedRole(store.Save(ctx, Actor{UserID: uuid.New(), Role: "bot"}, tenant)))
	})

	t.Run("corrupt ciphertext", func(t *testing.T) {
		credRepo.update(1, func(c *models.ProviderCredential) { c.PasswordEncrypted = []byte("garbage-garbage-garbage-garbage") })
		_, err := store.Load(ctx, user)
		assert.ErrorIs(t, err, ErrCredentialsCorrupt)
	})
}

type recordingStrategy struct {
	loads int
}

func (r *recordingStrategy) Load(ctx context.Context, actor Actor) (*ProviderAccount, error) {
	r.loads++
	return &ProviderAccount{Username: "custom"}, nil
}

func (r *recordingStrategy) Save(ctx context.Context, actor Actor, account ProviderAccount) error {
	return nil
}

func TestCredentialStore_Register(t *testing.T) {
	store := NewCredentialStore(newFakeCredentialRepo(), newFakeSettingRepo(), newTestCipher(t))
	custom := &recordingStrategy{}
	store.Register(CapabilityTenantAccount, custom)

	got, err := store.Load(context.Background(), Actor{UserID: uuid.New(), Role: RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "custom", got.Username)
	assert.Equal(t, 1, custom.loads)
}
