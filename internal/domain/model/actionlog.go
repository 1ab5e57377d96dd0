package model

import "time"

// ActionStatus is the outcome of one provider contract call.
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionFailure ActionStatus = "failure"
)

// ErrorKindConfiguration marks action records whose provider could not be
// obtained. It is not part of the per-call taxonomy.
const ErrorKindConfiguration ErrorKind = "configuration"

// ActionRecord is the audit entry written after every provider contract call.
type ActionRecord struct {
	ID        string
	TenantID  string
	Domain    Domain
	Vendor    string
	Operation string
	StartedAt time.Time
	Duration  time.Duration
	Status    ActionStatus
	ErrorKind ErrorKind // Empty on success.
	Attempts  int
	Message   string // Error message on failure.
}
