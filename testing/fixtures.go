package testing

import (
	"encoding/json"
	"fmt"

	"github.com/amirphl/mspace-dashboard/models"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// ContactFields is the data model shape most tests use
var ContactFields = models.FieldDefinitions{
	{Name: "name", Type: models.FieldTypeString},
	{Name: "phone", Type: models.FieldTypeString},
	{Name: "age", Type: models.FieldTypeNumber},
}

// CreateDataModel stores a contacts data model owned by userID
func (tf *TestFixtures) CreateDataModel(userID uuid.UUID) (*models.DataModel, error) {
	dm := &models.DataModel{
		UserID: userID,
		Name:   gofakeit.AppName(),
		Fields: ContactFields,
		Tags:   []string{"contacts"},
	}
	if err := tf.DB.DB.Create(dm).Error; err != nil {
		return nil, fmt.Errorf("failed to create test data model: %w", err)
	}
	return dm, nil
}

// ContactRecord builds a record payload with a Kenyan mobile number
func ContactRecord() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"name":  gofakeit.Name(),
		"phone": fmt.Sprintf("+2547%08d", gofakeit.Number(0, 99999999)),
		"age":   gofakeit.Number(18, 80),
	})
	return data
}

// CreateRecords stores n contact records in the data model
func (tf *TestFixtures) CreateRecords(dataModelID uint, n int) ([]*models.Record, error) {
	records := make([]*models.Record, 0, n)
	for range n {
		records = append(records, &models.Record{DataModelID: dataModelID, Data: ContactRecord()})
	}
	if err := tf.DB.DB.Create(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to create test records: %w", err)
	}
	return records, nil
}

// CreateCampaign stores a draft campaign targeting the data model
func (tf *TestFixtures) CreateCampaign(userID uuid.UUID, dataModelID uint) (*models.Campaign, error) {
	c := &models.Campaign{
		UserID:      userID,
		Title:       gofakeit.Sentence(3),
		Message:     gofakeit.Sentence(8),
		OwnerRole:   "user",
		DataModelID: &dataModelID,
	}
	if err := tf.DB.DB.Create(c).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return c, nil
}
