package role

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies composition failures.
type Kind string

const (
	// KindConflict means two sources provide different implementations
	// of the same method.
	KindConflict Kind = "conflict"

	// KindMissingRequirement means a required method is defined nowhere.
	KindMissingRequirement Kind = "missing_requirement"
)

// Sentinels for errors.Is matching.
var (
	ErrConflict           = errors.New("conflicting methods")
	ErrMissingRequirement = errors.New("missing methods")
)

// CompositionError reports every offending method of a failed role
// construction or application.
type CompositionError struct {
	Kind Kind

	// Subject names what was being built: a role or a consumer class.
	Subject string

	// Methods is the sorted set of offending method names.
	Methods []string
}

// NewConflictError builds a conflict error for subject.
func NewConflictError(subject string, methods []string) *CompositionError {
	return newError(KindConflict, subject, methods)
}

// NewMissingRequirementError builds a missing-requirement error for subject.
func NewMissingRequirementError(subject string, methods []string) *CompositionError {
	return newError(KindMissingRequirement, subject, methods)
}

func newError(kind Kind, subject string, methods []string) *CompositionError {
	sorted := append([]string(nil), methods...)
	sort.Strings(sorted)
	return &CompositionError{Kind: kind, Subject: subject, Methods: sorted}
}

// Error returns the error message.
func (e *CompositionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.sentinel(), strings.Join(e.Methods, ","))
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s", e.Subject, msg)
	}
	return msg
}

// Is matches ErrConflict or ErrMissingRequirement according to Kind.
func (e *CompositionError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *CompositionError) sentinel() error {
	if e.Kind == KindMissingRequirement {
		return ErrMissingRequirement
	}
	return ErrConflict
}

// AsCompositionError extracts a CompositionError from err's chain.
func AsCompositionError(err error) (*CompositionError, bool) {
	var ce *CompositionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
