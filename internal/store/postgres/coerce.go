package postgres

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// timeLayouts are the textual timestamp forms found in SQLite databases.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Coerce converts a value read from another store into a Go value pgx can
// encode for a column of the given information_schema data_type. Values that
// already fit are returned unchanged.
func Coerce(v any, dataType string) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch dataType {
	case "boolean":
		return toBool(v)
	case "smallint", "integer", "bigint":
		return toInt(v)
	case "real", "double precision":
		return toFloat(v)
	case "numeric":
		return toNumeric(v)
	case "timestamp without time zone", "timestamp with time zone", "date":
		return toTime(v)
	case "uuid":
		return toUUID(v)
	case "bytea":
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
		return v, nil
	case "text", "character varying", "character":
		return toText(v), nil
	}
	return v, nil
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to boolean", x)
		}
		return b, nil
	}
	return nil, fmt.Errorf("cannot convert %T to boolean", v)
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("cannot convert %v to integer without loss", x)
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to integer", x)
		}
		return n, nil
	}
	return v, nil
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to float", x)
		}
		return f, nil
	}
	return v, nil
}

func toNumeric(v any) (any, error) {
	switch x := v.(type) {
	case string:
		var n pgtype.Numeric
		if err := n.Scan(strings.TrimSpace(x)); err != nil {
			return nil, fmt.Errorf("cannot convert %q to numeric: %w", x, err)
		}
		return n, nil
	case []byte:
		return toNumeric(string(x))
	}
	return v, nil
}

func toTime(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		return toTime(string(x))
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as a timestamp", x)
	case int64:
		return time.Unix(x, 0).UTC(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to timestamp", v)
}

func toUUID(v any) (any, error) {
	switch x := v.(type) {
	case [16]byte:
		return x, nil
	case uuid.UUID:
		return [16]byte(x), nil
	case string:
		u, err := uuid.Parse(x)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to uuid: %w", x, err)
		}
		return [16]byte(u), nil
	case []byte:
		if len(x) == 16 {
			u, err := uuid.FromBytes(x)
			if err != nil {
				return nil, err
			}
			return [16]byte(u), nil
		}
		return toUUID(string(x))
	}
	return nil, fmt.Errorf("cannot convert %T to uuid", v)
}

func toText(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
