package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

func TestActionLogRepo_RecordAndList(t *testing.T) {
	repo := NewActionLogRepo(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, model.ActionRecord{
		TenantID: "acme", Domain: model.DomainCRM, Vendor: "hubspot", Operation: "create_contact",
		StartedAt: base, Duration: 120 * time.Millisecond, Status: model.ActionSuccess, Attempts: 1,
	}))
	require.NoError(t, repo.Record(ctx, model.ActionRecord{
		TenantID: "acme", Domain: model.DomainHelpdesk, Vendor: "zendesk", Operation: "create_ticket",
		StartedAt: base.Add(time.Second), Duration: 2 * time.Second, Status: model.ActionFailure,
		ErrorKind: model.KindRateLimit, Attempts: 3, Message: "too many requests",
	}))
	require.NoError(t, repo.Record(ctx, model.ActionRecord{
		TenantID: "globex", Domain: model.DomainCRM, Vendor: "hubspot", Operation: "add_note",
		StartedAt: base.Add(2 * time.Second), Status: model.ActionSuccess, Attempts: 1,
	}))

	got, err := repo.List(ctx, "acme", 10)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "create_ticket", got[0].Operation)
	assert.Equal(t, model.ActionFailure, got[0].Status)
	assert.Equal(t, model.KindRateLimit, got[0].ErrorKind)
	assert.Equal(t, 3, got[0].Attempts)
	assert.Equal(t, 2*time.Second, got[0].Duration)
	assert.True(t, got[0].StartedAt.Equal(base.Add(time.Second)))
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "create_contact", got[1].Operation)
	assert.Empty(t, got[1].ErrorKind)
}

func TestActionLogRepo_ListRespectsLimit(t *testing.T) {
	repo := NewActionLogRepo(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, repo.Record(ctx, model.ActionRecord{
			TenantID: "acme", Domain: model.DomainEmail, Vendor: "sendgrid", Operation: "send_email",
			StartedAt: base.Add(time.Duration(i) * time.Millisecond), Status: model.ActionSuccess, Attempts: 1,
		}))
	}

	got, err := repo.List(ctx, "acme", 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].StartedAt.After(got[1].StartedAt))
	assert.True(t, got[0].StartedAt.Equal(base.Add(4*time.Millisecond)))
}

func TestActionLogRepo_DuplicateIDFails(t *testing.T) {
	repo := NewActionLogRepo(setupTestDB(t))
	ctx := context.Background()
	rec := model.ActionRecord{ID: "fixed", TenantID: "acme", Domain: model.DomainCRM, Vendor: "hubspot",
		Operation: "create_contact", StartedAt: time.Now(), Status: model.ActionSuccess, Attempts: 1}

	require.NoError(t, repo.Record(ctx, rec))
	err := repo.Record(ctx, rec)

	require.Error(t, err)
	assert.True(t, model.IsKind(normalize(err, "action"), model.KindConflict))
}
