package driven

import (
	"context"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

// ActionLogSink records the outcome of provider contract calls.
type ActionLogSink interface {
	Record(ctx context.Context, rec model.ActionRecord) error
}

// ActionLogStore reads back recorded actions.
type ActionLogStore interface {
	ActionLogSink
	// List returns up to limit records for tenantID, newest first.
	List(ctx context.Context, tenantID string, limit int) ([]model.ActionRecord, error)
}
