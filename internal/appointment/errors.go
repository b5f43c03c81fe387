package appointment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrBookingBusy         = errors.New("practitioner schedule is being updated, please retry")
)

// ValidationError carries per-field messages for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ConflictError lists the appointments overlapping a requested range.
type ConflictError struct {
	Conflicts []Appointment
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "time range overlaps an existing appointment"
	}
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, fmt.Sprintf("%s (%s-%s)", c.ID, c.Start, c.End))
	}
	return "time range overlaps existing appointments: " + strings.Join(ids, ", ")
}

type AuthorizationError struct {
	Action string
	Role   Role
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role %q may not %s this appointment", e.Role, e.Action)
}
