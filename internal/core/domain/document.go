package domain

import (
	"encoding/json"
	"regexp"
	"time"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// StoredDocument is a published constraint document. Every publish assigns a
// new Revision so that loaded stores can be told apart.
type StoredDocument struct {
	Name      string
	Revision  string
	Body      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

func ValidateName(name string) error {
	if name == "" || len(name) > 128 || !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func ValidateFieldKey(key FieldKey) error {
	if key == "" || len(key) > 512 {
		return ErrInvalidField
	}
	return nil
}
