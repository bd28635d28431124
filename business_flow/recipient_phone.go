package businessflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/amirphl/mspace-dashboard/utils"
)

// phoneAliases are checked in order before any pattern scan
var phoneAliases = []string{
	"phone", "phone_number", "phoneNumber", "mobile", "mobile_number",
	"msisdn", "tel", "telephone", "cell", "contact",
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-.]{6,19}$`)

// ExtractPhone returns the raw phone-like value of a record.
// Alias keys win over pattern matches; other keys are scanned in sorted order.
func ExtractPhone(data map[string]any) (string, bool) {
	for _, alias := range phoneAliases {
		if v, ok := phoneText(data[alias]); ok {
			return v, true
		}
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, alias := range phoneAliases {
		for _, k := range keys {
			if k != alias && strings.EqualFold(k, alias) {
				if v, ok := phoneText(data[k]); ok {
					return v, true
				}
			}
		}
	}

	for _, k := range keys {
		if v, ok := phoneText(data[k]); ok && phonePattern.MatchString(v) {
			return v, true
		}
	}
	return "", false
}

func phoneText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		return x, x != ""
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

// RecipientPhone extracts and normalises the phone of a record to provider format
func RecipientPhone(data map[string]any, defaultRegion string) (string, error) {
	raw, ok := ExtractPhone(data)
	if !ok {
		return "", ErrRecipientPhoneMissing
	}
	phone, err := utils.NormalizePhone(raw, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	return phone, nil
}
