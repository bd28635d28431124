package businessflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/amirphl/mspace-dashboard/repository"
)

// Recipient is a record selected for one send invocation
type Recipient struct {
	RecordID uint
	Data     map[string]any
}

// fieldMatcher decides whether one record value satisfies one criterion.
// present is false when the record lacks the field.
type fieldMatcher interface {
	match(value any, present bool) bool
}

// Criteria is a parsed criteria object. All fields must match (logical AND).
type Criteria map[string]fieldMatcher

// ParseCriteria parses a criteria object. Empty input and null select everything.
// Input that is not a JSON object is ErrInvalidCriteria; malformed field criteria never match.
func ParseCriteria(raw json.RawMessage) (Criteria, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Criteria{}, nil
	}

	var decoded any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, ErrInvalidCriteria
	}

	criteria := make(Criteria, len(obj))
	for field, spec := range obj {
		criteria[field] = newFieldMatcher(spec)
	}
	return criteria, nil
}

func newFieldMatcher(spec any) fieldMatcher {
	obj, isObject := spec.(map[string]any)
	if !isObject {
		return exactMatcher{want: spec}
	}

	if len(obj) == 1 {
		if needle, ok := obj["contains"]; ok {
			s, isString := needle.(string)
			if !isString {
				return neverMatcher{}
			}
			return containsMatcher{needle: strings.ToLower(s)}
		}
	}

	if len(obj) == 0 {
		return neverMatcher{}
	}
	var rm rangeMatcher
	for key, bound := range obj {
		if key != "min" && key != "max" {
			return neverMatcher{}
		}
		if bound == nil {
			continue
		}
		n, ok := toNumber(bound)
		if !ok {
			return neverMatcher{}
		}
		if key == "min" {
			rm.min = &n
		} else {
			rm.max = &n
		}
	}
	return rm
}

// Matches reports whether a record satisfies every criterion
func (c Criteria) Matches(data map[string]any) bool {
	for field, m := range c {
		value, present := data[field]
		if !m.match(value, present) {
			return false
		}
	}
	return true
}

type neverMatcher struct{}

func (neverMatcher) match(any, bool) bool { return false }

type exactMatcher struct {
	want any
}

func (m exactMatcher) match(value any, present bool) bool {
	if !present {
		return false
	}
	wantNum, wantIsNum := m.want.(json.Number)
	gotNum, gotIsNum := value.(json.Number)
	if wantIsNum && gotIsNum {
		a, errA := wantNum.Float64()
		b, errB := gotNum.Float64()
		if errA == nil && errB == nil {
			return a == b
		}
	}
	want, ok := canonical(m.want)
	if !ok {
		return false
	}
	got, ok := canonical(value)
	return ok && want == got
}

type rangeMatcher struct {
	min *float64
	max *float64
}

func (m rangeMatcher) match(value any, present bool) bool {
	if !present {
		return false
	}
	n, ok := toNumber(value)
	if !ok {
		return false
	}
	if m.min != nil && n < *m.min {
		return false
	}
	if m.max != nil && n > *m.max {
		return false
	}
	return true
}

type containsMatcher struct {
	needle string
}

func (m containsMatcher) match(value any, present bool) bool {
	if !present {
		return false
	}
	switch v := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), m.needle)
	case json.Number:
		return strings.Contains(v.String(), m.needle)
	default:
		return false
	}
}

// toNumber accepts JSON numbers and numeric strings
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// canonical renders a decoded JSON value as a comparable string
func canonical(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case nil:
		return "null", true
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}

// RecipientResolver materialises the recipients of a data model for given criteria
type RecipientResolver interface {
	Resolve(ctx context.Context, dataModelID uint, criteria json.RawMessage) ([]Recipient, error)
}

// RecipientResolverImpl implements RecipientResolver over stored records
type RecipientResolverImpl struct {
	recordRepo repository.RecordRepository
}

// NewRecipientResolver creates a new recipient resolver
func NewRecipientResolver(recordRepo repository.RecordRepository) RecipientResolver {
	return &RecipientResolverImpl{recordRepo: recordRepo}
}

// Resolve returns matching records in ascending record id order
func (r *RecipientResolverImpl) Resolve(ctx context.Context, dataModelID uint, raw json.RawMessage) ([]Recipient, error) {
	criteria, err := ParseCriteria(raw)
	if err != nil {
		return nil, err
	}

	records, err := r.recordRepo.ListByDataModel(ctx, dataModelID)
	if err != nil {
		return nil, err
	}

	recipients := make([]Recipient, 0, len(records))
	for _, rec := range records {
		data := rec.Fields()
		if criteria.Matches(data) {
			recipients = append(recipients, Recipient{RecordID: rec.ID, Data: data})
		}
	}
	return recipients, nil
}
