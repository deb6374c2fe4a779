package config

import (
	"fmt"
	"strings"
)

// ValidationError pinpoints one invalid topology element
type ValidationError struct {
	Device string // device name, empty for file-level problems
	Field  string
	Msg    string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	switch {
	case e.Device != "" && e.Field != "":
		return fmt.Sprintf("device %q: %s: %s", e.Device, e.Field, e.Msg)
	case e.Device != "":
		return fmt.Sprintf("device %q: %s", e.Device, e.Msg)
	default:
		return e.Msg
	}
}

// ValidationErrors aggregates every problem found in one pass
type ValidationErrors []*ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationErrors) addf(device, field, format string, args ...interface{}) {
	*e = append(*e, &ValidationError{
		Device: device,
		Field:  field,
		Msg:    fmt.Sprintf(format, args...),
	})
}
