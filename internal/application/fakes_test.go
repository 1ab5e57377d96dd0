package application_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// fakeCRM implements driven.CRM. Calls run through the executor so tests see
// real retry and rate-limit behavior.
type fakeCRM struct {
	deps        provider.Deps
	validateErr error
	validations *atomic.Int32
	createFn    func(context.Context) (*model.Contact, error)
}

var _ driven.CRM = (*fakeCRM)(nil)

func (f *fakeCRM) Identity() model.ProviderIdentity { return f.deps.Identity }

func (f *fakeCRM) Validate(ctx context.Context) error {
	if f.validations != nil {
		f.validations.Add(1)
	}
	return resilience.Run(ctx, f.deps.Executor, "validate", func(context.Context) error {
		return f.validateErr
	})
}

func (f *fakeCRM) CreateContact(ctx context.Context, in model.ContactInput, _ model.ContactOptions) (*model.Contact, error) {
	return resilience.Do(ctx, f.deps.Executor, "create_contact", func(ctx context.Context) (*model.Contact, error) {
		if f.createFn != nil {
			return f.createFn(ctx)
		}
		return &model.Contact{ID: "c-1", Email: in.Email}, nil
	})
}

func (f *fakeCRM) UpdateContact(context.Context, string, model.ContactUpdate) (*model.Contact, error) {
	return &model.Contact{}, nil
}

func (f *fakeCRM) SearchContacts(context.Context, model.ContactSearch) ([]model.ContactMatch, error) {
	return nil, nil
}

func (f *fakeCRM) AddNote(context.Context, string, model.NoteInput) (*model.Note, error) {
	return &model.Note{}, nil
}

func (f *fakeCRM) CreateDeal(context.Context, model.DealInput) (*model.Deal, error) {
	return &model.Deal{}, nil
}

// bareProvider implements only driven.Provider.
type bareProvider struct{ id model.ProviderIdentity }

func (b *bareProvider) Identity() model.ProviderIdentity { return b.id }
func (b *bareProvider) Validate(context.Context) error   { return nil }

// stubResolver returns fixed credentials per vendor.
type stubResolver struct {
	mu    sync.Mutex
	creds map[string]model.Credentials
	calls int
}

func newStubResolver(creds map[string]model.Credentials) *stubResolver {
	return &stubResolver{creds: creds}
}

func (r *stubResolver) Resolve(_ context.Context, _ string, _ model.Domain, vendor string) (model.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	c, ok := r.creds[vendor]
	if !ok {
		return nil, driven.ErrNoCredentials
	}
	return c, nil
}

// stubSettings serves settings from a map keyed by tenant then domain.
type stubSettings map[string]map[model.Domain]model.ProviderSettings

func (s stubSettings) Settings(tenantID string, domain model.Domain) (model.ProviderSettings, bool, error) {
	ps, ok := s[tenantID][domain]
	return ps, ok, nil
}

// memorySink collects action records.
type memorySink struct {
	mu      sync.Mutex
	records []model.ActionRecord
	err     error
}

func (m *memorySink) Record(_ context.Context, rec model.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func (m *memorySink) all() []model.ActionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ActionRecord(nil), m.records...)
}
