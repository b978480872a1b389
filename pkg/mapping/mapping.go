package mapping

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

func ValueToSQLNullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func SQLNullStringToValue(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func ValueToSQLNullTime(v time.Time) sql.NullTime {
	return sql.NullTime{Time: v, Valid: !v.IsZero()}
}

func SQLNullTimeToPointer(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func PointerToSQLNullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func PointerToSQLNullInt32(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func SQLNullInt32ToPointer(v sql.NullInt32) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int32)
	return &i
}

func PointerToSQLNullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func SQLNullStringToPointer(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func UUIDToSQLNullString(v uuid.UUID) sql.NullString {
	if v == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func SQLNullStringToUUID(v sql.NullString) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	id, err := uuid.Parse(v.String)
	if err != nil {
		return uuid.Nil
	}
	return id
}
