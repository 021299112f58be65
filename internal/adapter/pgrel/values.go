package pgrel

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Record is one fetched row keyed by result column name.
type Record map[string]any

// Field implements table.Fielder; a column not in the result reads as nil.
func (r Record) Field(name string) (any, bool) { return r[name], true }

// Normalize converts pgx scan results into plain Go values: UUIDs become
// strings, numerics float64, and invalid (NULL) pgtype values nil.
func Normalize(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.UUID:
		if !val.Valid {
			return nil
		}
		return uuid.UUID(val.Bytes).String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Date:
		if !val.Valid {
			return nil
		}
		return val.Time
	case pgtype.Timestamp:
		if !val.Valid {
			return nil
		}
		return val.Time
	case pgtype.Timestamptz:
		if !val.Valid {
			return nil
		}
		return val.Time
	case pgtype.Text:
		if !val.Valid {
			return nil
		}
		return val.String
	case pgtype.Bool:
		if !val.Valid {
			return nil
		}
		return val.Bool
	case pgtype.Int8:
		if !val.Valid {
			return nil
		}
		return val.Int64
	}
	return v
}
