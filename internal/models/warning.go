// internal/models/warning.go
package models

import "fmt"

type WarningKind string

const (
	WarnMalformedRow        WarningKind = "malformed_row"
	WarnMalformedItem       WarningKind = "malformed_item"
	WarnUnresolvedDetection WarningKind = "unresolved_detection"
)

// Warning is a recovered problem reported alongside a result.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Subject string      `json:"subject,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Subject == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", w.Kind, w.Message, w.Subject)
}
