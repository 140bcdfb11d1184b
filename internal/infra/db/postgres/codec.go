package postgres

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"crypto-role-subscription/internal/domain"
)

// Amounts travel as text so NUMERIC precision survives the round trip.
func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &d, nil
}

// jsonArg encodes a JSONB parameter; nil stays SQL NULL.
func jsonArg(v any) (any, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if m == nil {
			return nil, nil
		}
	case map[string]string:
		if m == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}
	return string(b), nil
}

func durationArg(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(*d / time.Second)
	return &s
}

func durationFrom(secs *int64) *time.Duration {
	if secs == nil {
		return nil
	}
	d := time.Duration(*secs) * time.Second
	return &d
}
