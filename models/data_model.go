package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// FieldType is the primitive type declared for a data model field
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
)

// Valid checks if the field type is valid
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate:
		return true
	default:
		return false
	}
}

// FieldDefinition names one column of a user-defined data model
type FieldDefinition struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// FieldDefinitions is stored as a jsonb array
type FieldDefinitions []FieldDefinition

// Value implements the driver.Valuer interface for FieldDefinitions
func (f FieldDefinitions) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for FieldDefinitions
func (f *FieldDefinitions) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into FieldDefinitions", value)
	}

	return json.Unmarshal(raw, f)
}

// Names returns the declared field names in declaration order
func (f FieldDefinitions) Names() []string {
	names := make([]string, 0, len(f))
	for _, d := range f {
		names = append(names, d.Name)
	}
	return names
}

// DataModel is a user-defined schema whose records are the recipient universe
type DataModel struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uk_data_models_uuid" json:"uuid"`
	UserID      uuid.UUID        `gorm:"type:uuid;not null;index:idx_data_models_user_id" json:"user_id"`
	Name        string           `gorm:"size:255;not null" json:"name"`
	Description *string          `gorm:"type:text" json:"description,omitempty"`
	Fields      FieldDefinitions `gorm:"type:jsonb;not null;default:'[]'" json:"fields"`
	Tags        pq.StringArray   `gorm:"type:text[]" json:"tags"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DataModel) TableName() string { return "data_models" }

// BeforeCreate ensures UUID is set
func (m *DataModel) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	return nil
}

// DataModelFilter represents filter criteria for data model queries
type DataModelFilter struct {
	ID     *uint
	UUID   *uuid.UUID
	UserID *uuid.UUID
	Name   *string
	Tag    *string
}

// Record is a JSON-valued row conforming loosely to its data model
type Record struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	DataModelID uint            `gorm:"not null;index:idx_records_data_model_id" json:"data_model_id"`
	Data        json.RawMessage `gorm:"type:jsonb;not null" json:"data"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Record) TableName() string { return "records" }

// Fields decodes the record payload keeping numbers as json.Number.
// Non-object payloads decode to an empty map.
func (r *Record) Fields() map[string]any {
	out := map[string]any{}
	if len(r.Data) == 0 {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader(r.Data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// RecordFilter represents filter criteria for record queries
type RecordFilter struct {
	ID          *uint
	IDs         []uint
	DataModelID *uint
}
