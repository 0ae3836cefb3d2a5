package models

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/nkiryanov/numrent/internal/apperrors"
)

// ProviderTag selects the number provider an order is dispatched to. Closed set
type ProviderTag string

const (
	ProviderSMSActivate ProviderTag = "smsactivate"
	ProviderFiveSim     ProviderTag = "fivesim"
)

var ProviderTags = []ProviderTag{ProviderSMSActivate, ProviderFiveSim}

// Has to return apperrors.ErrProviderUnknown for a tag out of the set
func ParseProviderTag(s string) (ProviderTag, error) {
	tag := ProviderTag(s)
	if !slices.Contains(ProviderTags, tag) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrProviderUnknown, s)
	}
	return tag, nil
}

// Scan parses the tag once when the order is read from the database
func (t *ProviderTag) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("can't scan %T into provider tag", src)
	}

	tag, err := ParseProviderTag(s)
	if err != nil {
		return err
	}
	*t = tag
	return nil
}

func (t ProviderTag) Value() (driver.Value, error) {
	return string(t), nil
}
