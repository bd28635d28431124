package businessflow

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/amirphl/mspace-dashboard/app/dto"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type historyFixture struct {
	history   *fakeHistoryRepo
	campaigns *fakeCampaignRepo
	flow      *MessageHistoryFlowImpl
	owner     Actor
	campaign  *models.Campaign
}

func newHistoryFixture(t *testing.T) *historyFixture {
	t.Helper()
	ctx := context.Background()
	f := &historyFixture{
		history:   newFakeHistoryRepo(),
		campaigns: newFakeCampaignRepo(),
		owner:     Actor{UserID: uuid.New(), Role: RoleUser},
	}
	f.flow = NewMessageHistoryFlow(f.history, f.campaigns)

	f.campaign = &models.Campaign{UserID: f.owner.UserID, OwnerRole: RoleUser, Title: "promo", Message: "hi"}
	require.NoError(t, f.campaigns.Save(ctx, f.campaign))

	campaignID := f.campaign.ID
	rows := []*models.MessageHistory{
		{UserID: f.owner.UserID, CampaignID: &campaignID, Recipient: "254712345678", Message: "hi", SenderID: "ACME", Segments: 1, Cost: 1, Status: models.MessageStatusDelivered, ProviderMessageID: utils.ToPtr("m-1")},
		{UserID: f.owner.UserID, CampaignID: &campaignID, Recipient: "254712345679", Message: "hi", SenderID: "ACME", Segments: 1, Status: models.MessageStatusFailed, ErrorKind: utils.ToPtr("invalid_sender"), ErrorMessage: utils.ToPtr("Invalid sender ID")},
		{UserID: f.owner.UserID, Recipient: "254712345680", Message: gofakeit.Sentence(5), SenderID: "ACME", Segments: 1, Cost: 1, Status: models.MessageStatusSent},
		{UserID: uuid.New(), Recipient: "254712345681", Message: "other tenant", SenderID: "X", Segments: 1, Status: models.MessageStatusSent},
	}
	for _, row := range rows {
		row.CreatedAt = utils.UTCNow()
		require.NoError(t, f.history.Save(ctx, row))
	}
	return f
}

func TestMessageHistoryFlow_ListMessages(t *testing.T) {
	ctx := context.Background()
	f := newHistoryFixture(t)

	own, err := f.flow.ListMessages(ctx, f.owner, &dto.ListMessagesRequest{})
	require.NoError(t, err)
	assert.Len(t, own.Items, 3)
	assert.Equal(t, int64(3), own.Pagination.Total)

	admin, err := f.flow.ListMessages(ctx, Actor{UserID: uuid.New(), Role: RoleAdmin}, &dto.ListMessagesRequest{})
	require.NoError(t, err)
	assert.Len(t, admin.Items, 4)

	campaignUUID := f.campaign.UUID.String()
	byCampaign, err := f.flow.ListMessages(ctx, f.owner, &dto.ListMessagesRequest{CampaignUUID: &campaignUUID})
	require.NoError(t, err)
	assert.Len(t, byCampaign.Items, 2)

	failed := "failed"
	onlyFailed, err := f.flow.ListMessages(ctx, f.owner, &dto.ListMessagesRequest{Status: &failed})
	require.NoError(t, err)
	require.Len(t, onlyFailed.Items, 1)
	assert.Equal(t, "invalid_sender", utils.Deref(onlyFailed.Items[0].ErrorKind))

	_, err = f.flow.ListMessages(ctx, Actor{UserID: uuid.New(), Role: RoleUser}, &dto.ListMessagesRequest{CampaignUUID: &campaignUUID})
	assert.True(t, IsCampaignAccessDenied(err))

	missing := uuid.NewString()
	_, err = f.flow.ListMessages(ctx, f.owner, &dto.ListMessagesRequest{CampaignUUID: &missing})
	assert.True(t, IsCampaignNotFound(err))
}

func TestMessageHistoryFlow_ExportMessages(t *testing.T) {
	f := newHistoryFixture(t)

	content, name, err := f.flow.ExportMessages(context.Background(), f.owner, &dto.ListMessagesRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "messages-"))
	assert.True(t, strings.HasSuffix(name, ".xlsx"))

	xf, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer xf.Close()

	assert.Equal(t, []string{messageExportSheet}, xf.GetSheetList())
	rows, err := xf.GetRows(messageExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Recipient", rows[0][2])
	assert.Equal(t, "254712345678", rows[1][2])
	assert.Equal(t, "delivered", rows[1][7])
	assert.Equal(t, "m-1", rows[1][8])
	assert.Equal(t, "invalid_sender", rows[2][9])

	for _, row := range rows[1:] {
		assert.NotEqual(t, "254712345681", row[2])
	}
}
