package util

import "github.com/google/uuid"

func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// IsUUID reports whether value parses as a UUID. Entry ids are UUIDs in
// Postgres, so anything else can be treated as absent without a query.
func IsUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
