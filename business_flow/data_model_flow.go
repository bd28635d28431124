package businessflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/mspace-dashboard/app/dto"
	"github.com/amirphl/mspace-dashboard/config"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const defaultPreviewLimit = 20

// DataModelFlow manages user-defined data models and their records
type DataModelFlow interface {
	CreateDataModel(ctx context.Context, actor Actor, req *dto.CreateDataModelRequest, metadata *ClientMetadata) (*dto.DataModelResponse, error)
	ListDataModels(ctx context.Context, actor Actor, req *dto.ListDataModelsRequest) (*dto.ListDataModelsResponse, error)
	GetDataModel(ctx context.Context, actor Actor, dataModelUUID string) (*dto.DataModelResponse, error)
	AddRecords(ctx context.Context, actor Actor, dataModelUUID string, req *dto.AddRecordsRequest) (*dto.AddRecordsResponse, error)
	ListRecords(ctx context.Context, actor Actor, dataModelUUID string, req dto.PaginationRequest) (*dto.ListRecordsResponse, error)
	PreviewRecipients(ctx context.Context, actor Actor, dataModelUUID string, req *dto.PreviewRecipientsRequest) (*dto.PreviewRecipientsResponse, error)
}

// DataModelFlowImpl implements DataModelFlow
type DataModelFlowImpl struct {
	dataModelRepo repository.DataModelRepository
	recordRepo    repository.RecordRepository
	resolver      RecipientResolver
	cfg           config.MspaceConfig
}

// NewDataModelFlow creates a new data model flow
func NewDataModelFlow(dataModelRepo repository.DataModelRepository, recordRepo repository.RecordRepository, resolver RecipientResolver, cfg config.MspaceConfig) *DataModelFlowImpl {
	return &DataModelFlowImpl{
		dataModelRepo: dataModelRepo,
		recordRepo:    recordRepo,
		resolver:      resolver,
		cfg:           cfg,
	}
}

func (f *DataModelFlowImpl) CreateDataModel(ctx context.Context, actor Actor, req *dto.CreateDataModelRequest, metadata *ClientMetadata) (*dto.DataModelResponse, error) {
	fields := make(models.FieldDefinitions, 0, len(req.Fields))
	seen := make(map[string]struct{}, len(req.Fields))
	for _, fd := range req.Fields {
		if _, dup := seen[fd.Name]; dup {
			return nil, NewBusinessErrorf("DATA_MODEL_VALIDATION_FAILED", "Field %s is declared twice", nil, fd.Name)
		}
		seen[fd.Name] = struct{}{}
		fieldType := models.FieldType(fd.Type)
		if !fieldType.Valid() {
			return nil, NewBusinessErrorf("DATA_MODEL_VALIDATION_FAILED", "Field %s has unknown type %s", nil, fd.Name, fd.Type)
		}
		fields = append(fields, models.FieldDefinition{Name: fd.Name, Type: fieldType})
	}

	now := utils.UTCNow()
	dataModel := &models.DataModel{
		UserID:      actor.UserID,
		Name:        req.Name,
		Description: req.Description,
		Fields:      fields,
		Tags:        pq.StringArray(req.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.dataModelRepo.Save(ctx, dataModel); err != nil {
		return nil, NewBusinessError("DATA_MODEL_CREATION_FAILED", "Data model creation failed", err)
	}

	return toDataModelResponse(dataModel, 0), nil
}

func (f *DataModelFlowImpl) ListDataModels(ctx context.Context, actor Actor, req *dto.ListDataModelsRequest) (*dto.ListDataModelsResponse, error) {
	page, pageSize, offset, err := normalizePagination(req.PaginationRequest)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}

	filter := models.DataModelFilter{Tag: req.Tag}
	if !actor.IsAdmin() {
		filter.UserID = &actor.UserID
	}

	total, err := f.dataModelRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("DATA_MODEL_LIST_FAILED", "Failed to list data models", err)
	}
	rows, err := f.dataModelRepo.ByFilter(ctx, filter, "id DESC", pageSize, offset)
	if err != nil {
		return nil, NewBusinessError("DATA_MODEL_LIST_FAILED", "Failed to list data models", err)
	}

	items := make([]dto.DataModelResponse, 0, len(rows))
	for _, dm := range rows {
		count, err := f.recordRepo.Count(ctx, models.RecordFilter{DataModelID: &dm.ID})
		if err != nil {
			return nil, NewBusinessError("DATA_MODEL_LIST_FAILED", "Failed to count records", err)
		}
		items = append(items, *toDataModelResponse(dm, count))
	}

	return &dto.ListDataModelsResponse{Items: items, Pagination: paginationInfo(page, pageSize, total)}, nil
}

func (f *DataModelFlowImpl) GetDataModel(ctx context.Context, actor Actor, dataModelUUID string) (*dto.DataModelResponse, error) {
	dataModel, err := f.ownedDataModel(ctx, actor, dataModelUUID)
	if err != nil {
		return nil, err
	}
	count, err := f.recordRepo.Count(ctx, models.RecordFilter{DataModelID: &dataModel.ID})
	if err != nil {
		return nil, NewBusinessError("DATA_MODEL_LOOKUP_FAILED", "Failed to count records", err)
	}
	return toDataModelResponse(dataModel, count), nil
}

// AddRecords inserts a batch of JSON object records. Declared fields are type checked; extra keys are kept.
func (f *DataModelFlowImpl) AddRecords(ctx context.Context, actor Actor, dataModelUUID string, req *dto.AddRecordsRequest) (*dto.AddRecordsResponse, error) {
	if len(req.Records) > utils.MaxRecordsPerBatch {
		return nil, NewBusinessErrorf("TOO_MANY_RECORDS", "At most %d records per batch", ErrTooManyRecords, utils.MaxRecordsPerBatch)
	}

	dataModel, err := f.ownedDataModel(ctx, actor, dataModelUUID)
	if err != nil {
		return nil, err
	}

	now := utils.UTCNow()
	records := make([]*models.Record, 0, len(req.Records))
	for i, raw := range req.Records {
		if err := validateRecord(raw, dataModel.Fields); err != nil {
			return nil, NewBusinessErrorf("INVALID_RECORD", "Record %d is invalid", err, i)
		}
		records = append(records, &models.Record{DataModelID: dataModel.ID, Data: raw, CreatedAt: now})
	}

	if err := f.recordRepo.SaveBatch(ctx, records); err != nil {
		return nil, NewBusinessError("RECORD_CREATION_FAILED", "Failed to store records", err)
	}
	return &dto.AddRecordsResponse{Inserted: len(records)}, nil
}

func validateRecord(raw json.RawMessage, fields models.FieldDefinitions) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrInvalidRecord
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	for _, fd := range fields {
		v, ok := data[fd.Name]
		if !ok || v == nil {
			continue
		}
		if !fieldValueMatches(fd.Type, v) {
			return fmt.Errorf("%w: field %s must be %s", ErrInvalidRecord, fd.Name, fd.Type)
		}
	}
	return nil
}

func fieldValueMatches(fieldType models.FieldType, v any) bool {
	switch fieldType {
	case models.FieldTypeString:
		_, ok := v.(string)
		return ok
	case models.FieldTypeNumber:
		_, ok := v.(json.Number)
		return ok
	case models.FieldTypeBoolean:
		_, ok := v.(bool)
		return ok
	case models.FieldTypeDate:
		s, ok := v.(string)
		if !ok {
			return false
		}
		if _, err := time.Parse(time.DateOnly, s); err == nil {
			return true
		}
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	default:
		return true
	}
}

func (f *DataModelFlowImpl) ListRecords(ctx context.Context, actor Actor, dataModelUUID string, req dto.PaginationRequest) (*dto.ListRecordsResponse, error) {
	page, pageSize, offset, err := normalizePagination(req)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}
	dataModel, err := f.ownedDataModel(ctx, actor, dataModelUUID)
	if err != nil {
		return nil, err
	}

	filter := models.RecordFilter{DataModelID: &dataModel.ID}
	total, err := f.recordRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("RECORD_LIST_FAILED", "Failed to list records", err)
	}
	rows, err := f.recordRepo.ByFilter(ctx, filter, "id ASC", pageSize, offset)
	if err != nil {
		return nil, NewBusinessError("RECORD_LIST_FAILED", "Failed to list records", err)
	}

	items := make([]dto.RecordResponse, 0, len(rows))
	for _, r := range rows {
		items = append(items, dto.RecordResponse{ID: r.ID, Data: r.Data, CreatedAt: r.CreatedAt.Format(time.RFC3339)})
	}
	return &dto.ListRecordsResponse{Items: items, Pagination: paginationInfo(page, pageSize, total)}, nil
}

// PreviewRecipients evaluates criteria against a data model and returns the first matches
func (f *DataModelFlowImpl) PreviewRecipients(ctx context.Context, actor Actor, dataModelUUID string, req *dto.PreviewRecipientsRequest) (*dto.PreviewRecipientsResponse, error) {
	dataModel, err := f.ownedDataModel(ctx, actor, dataModelUUID)
	if err != nil {
		return nil, err
	}

	recipients, err := f.resolver.Resolve(ctx, dataModel.ID, req.Criteria)
	if err != nil {
		if IsInvalidCriteria(err) {
			return nil, NewBusinessError("INVALID_CRITERIA", "Criteria are invalid", err)
		}
		return nil, NewBusinessError("RECIPIENT_RESOLUTION_FAILED", "Failed to resolve recipients", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultPreviewLimit
	}

	resp := &dto.PreviewRecipientsResponse{Count: len(recipients), Recipients: make([]dto.RecipientPreview, 0, min(limit, len(recipients)))}
	for _, r := range recipients {
		phone, err := RecipientPhone(r.Data, f.cfg.DefaultRegion)
		if err != nil {
			resp.WithoutPhone++
		}
		if len(resp.Recipients) >= limit {
			continue
		}
		data, _ := json.Marshal(r.Data)
		preview := dto.RecipientPreview{RecordID: r.RecordID, Data: data}
		if err == nil {
			preview.Phone = utils.ToPtr(phone)
		}
		resp.Recipients = append(resp.Recipients, preview)
	}
	resp.EstimatedCost = int64(resp.Count-resp.WithoutPhone) * f.cfg.CostPerSegment

	return resp, nil
}

func (f *DataModelFlowImpl) ownedDataModel(ctx context.Context, actor Actor, dataModelUUID string) (*models.DataModel, error) {
	id, err := uuid.Parse(dataModelUUID)
	if err != nil {
		return nil, NewBusinessError("DATA_MODEL_NOT_FOUND", "Data model not found", ErrDataModelNotFound)
	}
	dataModel, err := f.dataModelRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("DATA_MODEL_LOOKUP_FAILED", "Failed to lookup data model", err)
	}
	if dataModel == nil {
		return nil, NewBusinessError("DATA_MODEL_NOT_FOUND", "Data model not found", ErrDataModelNotFound)
	}
	if !actor.Owns(dataModel.UserID) {
		return nil, NewBusinessError("DATA_MODEL_ACCESS_DENIED", "Data model access denied", ErrDataModelAccessDenied)
	}
	return dataModel, nil
}

func toDataModelResponse(dm *models.DataModel, recordCount int64) *dto.DataModelResponse {
	fields := make([]dto.FieldDefinitionDTO, 0, len(dm.Fields))
	for _, fd := range dm.Fields {
		fields = append(fields, dto.FieldDefinitionDTO{Name: fd.Name, Type: string(fd.Type)})
	}
	tags := []string(dm.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &dto.DataModelResponse{
		UUID:        dm.UUID.String(),
		Name:        dm.Name,
		Description: dm.Description,
		Fields:      fields,
		Tags:        tags,
		RecordCount: recordCount,
		CreatedAt:   dm.CreatedAt.Format(time.RFC3339),
	}
}
