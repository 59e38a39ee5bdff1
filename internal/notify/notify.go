// Package notify carries booking confirmations out of the system. Dispatch is
// best-effort: a failed send never unwinds a committed booking.
package notify

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Message is a rendered notification bound for one destination.
type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Sink accepts messages for delivery.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// TemplateData is what a caller-supplied template can reference.
type TemplateData struct {
	Start     time.Time
	End       time.Time
	Clinician string
}

// Render executes a caller-supplied text/template against the booked slot.
// A malformed template is a notification failure, not a booking failure.
func Render(tmpl string, data TemplateData) (string, error) {
	t, err := template.New("notification").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse notification template: %w", err)
	}

	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render notification template: %w", err)
	}

	return b.String(), nil
}
