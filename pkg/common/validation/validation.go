package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NonFieldKey collects violations that are not tied to a single field.
const NonFieldKey = "non_field_errors"

// FieldErrors aggregates every violated field into one error so a caller can
// present all problems at once instead of fixing them one resubmission at a
// time.
type FieldErrors map[string][]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for key := range e {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(e[key], "; ")))
	}
	return strings.Join(parts, ", ")
}

// Add appends a message to the given field's violation list.
func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Merge folds another set of field errors into this one.
func (e FieldErrors) Merge(other FieldErrors) {
	for field, messages := range other {
		e[field] = append(e[field], messages...)
	}
}

// Empty reports whether no violations were recorded.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

// OrNil returns the collected errors as an error value, or nil when none
// were recorded.
func (e FieldErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// AsFieldErrors unwraps err into FieldErrors if it is one.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fieldErrs FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs, true
	}
	return nil, false
}
