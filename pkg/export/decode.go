package export

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

// DecodeBookings converts a getBookings payload into bookings. The server
// sends either an array or an object keyed by booking id, and numbers may
// arrive as JSON numbers or numeric strings.
func DecodeBookings(payload any) ([]*api.Booking, error) {
	var rows []any
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []any:
		rows = p
	case map[string]any:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rows = append(rows, p[k])
		}
	default:
		return nil, fmt.Errorf("unexpected bookings payload of type %T", payload)
	}

	bookings := make([]*api.Booking, 0, len(rows))
	for i, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("booking %d: unexpected type %T", i, row)
		}
		b, err := decodeBooking(m)
		if err != nil {
			return nil, fmt.Errorf("booking %d: %w", i, err)
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func decodeBooking(m map[string]any) (*api.Booking, error) {
	b := &api.Booking{}
	ints := []struct {
		key string
		dst *int
	}{
		{"iBookingId", &b.ID},
		{"iAccountId", &b.AccountID},
		{"iMainCategoryId", &b.MainCategoryID},
		{"iSubCategoryId", &b.SubCategoryID},
		{"iBookingFrequency", &b.Frequency},
		{"iBookingType", &b.Type},
	}
	for _, f := range ints {
		v, err := number(m[f.key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = int(v)
	}

	v, err := number(m["fBookingValue"])
	if err != nil {
		return nil, fmt.Errorf("fBookingValue: %w", err)
	}
	b.Value = v

	b.Date = text(m["sBookingDate"])
	b.Description = text(m["sBookingDescription"])
	return b, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case string:
		if n == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
