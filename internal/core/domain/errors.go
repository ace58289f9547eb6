package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidName  = errors.New("invalid document name")
	ErrInvalidField = errors.New("invalid field key")
	ErrNotFound     = errors.New("not found")
	ErrLoadFailed   = errors.New("constraint document load failed")
)

// ErrDocumentViolation is returned when a published document does not have the
// shape of a constraint document. Issues holds one entry per schema failure.
type ErrDocumentViolation struct {
	Issues []string
}

func (e *ErrDocumentViolation) Error() string {
	return fmt.Sprintf("constraint document rejected: %s", strings.Join(e.Issues, "; "))
}
