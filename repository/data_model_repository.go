package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/mspace-dashboard/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DataModelRepositoryImpl implements DataModelRepository interface
type DataModelRepositoryImpl struct {
	*BaseRepository[models.DataModel, models.DataModelFilter]
}

// NewDataModelRepository creates a new data model repository
func NewDataModelRepository(db *gorm.DB) DataModelRepository {
	return &DataModelRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DataModel, models.DataModelFilter](db, applyDataModelFilter),
	}
}

// ByUUID retrieves a data model by its public identifier
func (r *DataModelRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.DataModel, error) {
	db := r.getDB(ctx)

	var model models.DataModel
	err := db.Where("uuid = ?", id).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find data model by UUID: %w", err)
	}

	return &model, nil
}

func applyDataModelFilter(db *gorm.DB, filter models.DataModelFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}
	if filter.Tag != nil {
		db = db.Where("? = ANY(tags)", *filter.Tag)
	}
	return db
}

// RecordRepositoryImpl implements RecordRepository interface
type RecordRepositoryImpl struct {
	*BaseRepository[models.Record, models.RecordFilter]
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &RecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Record, models.RecordFilter](db, applyRecordFilter),
	}
}

// ListByDataModel returns every record of a data model in ascending id order
func (r *RecordRepositoryImpl) ListByDataModel(ctx context.Context, dataModelID uint) ([]*models.Record, error) {
	db := r.getDB(ctx)

	var records []*models.Record
	err := db.Where("data_model_id = ?", dataModelID).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records by data model: %w", err)
	}

	return records, nil
}

// ByIDs returns the records with the given ids in the order the ids were given.
// Missing ids are skipped.
func (r *RecordRepositoryImpl) ByIDs(ctx context.Context, ids []uint) ([]*models.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)

	var records []*models.Record
	if err := db.Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list records by ids: %w", err)
	}

	byID := make(map[uint]*models.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	ordered := make([]*models.Record, 0, len(records))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, rec)
		}
	}

	return ordered, nil
}

func applyRecordFilter(db *gorm.DB, filter models.RecordFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if len(filter.IDs) > 0 {
		db = db.Where("id IN ?", filter.IDs)
	}
	if filter.DataModelID != nil {
		db = db.Where("data_model_id = ?", *filter.DataModelID)
	}
	return db
}
