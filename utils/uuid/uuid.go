package uuid

import (
	google_uuid "github.com/google/uuid"
)

// MustUUID returns a new random UUID string
func MustUUID() string {
	return google_uuid.New().String()
}

// New returns a new random UUID
func New() google_uuid.UUID {
	return google_uuid.New()
}

// Parse parses s as a UUID. The nil UUID is rejected
// since it cannot disambiguate one node from another.
func Parse(s string) (google_uuid.UUID, error) {
	id, err := google_uuid.Parse(s)

	if err != nil {
		return google_uuid.Nil, err
	}

	if id == google_uuid.Nil {
		return google_uuid.Nil, errNilUUID
	}

	return id, nil
}
