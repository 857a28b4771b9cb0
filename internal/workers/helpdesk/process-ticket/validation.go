package processticket

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"helpdesk-workers/internal/common/validation"
)

// GetInputSchema describes the variables the worker reads. Other process
// variables are allowed. Length is checked by CheckLength on trimmed text.
func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"ticketText": {
				Type:        "string",
				Description: "Free-text employee support request",
				MinLength:   validation.IntPtr(1),
			},
		},
		Required:             []string{"ticketText"},
		AdditionalProperties: true,
	}
}

// CheckLength rejects text longer than limit characters once surrounding
// whitespace is removed.
func CheckLength(text string, limit int) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n > limit {
		return fmt.Errorf("%w: ticket text has %d characters, limit is %d", ErrInvalidTicket, n, limit)
	}
	return nil
}

func validationMessage(r *validation.ValidationResult) string {
	return strings.Join(r.GetErrorMessages(), "; ")
}
