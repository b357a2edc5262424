package domain

import (
	"strings"
	"time"
)

// EventStaff links one staff member to one event. The ID doubles as the
// credential carried by kiosk QR codes.
type EventStaff struct {
	ID                  string
	EventID             int64
	StaffID             int64
	StaffCPF            string
	RegistrationCheckID *int64
	CreatedAt           time.Time
	CreatedBy           int64
}

// Registered reports whether the registration check has been recorded.
func (e *EventStaff) Registered() bool {
	return e != nil && e.RegistrationCheckID != nil
}

// NormalizeCPF strips punctuation so "123.456.789-00" and "12345678900" match.
func NormalizeCPF(cpf string) string {
	var b strings.Builder
	b.Grow(len(cpf))
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
