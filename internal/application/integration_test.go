package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vendorbridge/internal/application"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

func TestIntegrationService_RecordsSuccess(t *testing.T) {
	fx := newFactoryFixture(t, nil, 0)
	sink := &memorySink{}
	svc := application.NewIntegrationService(fx.factory, nil, sink, nil)

	contact, err := svc.CreateContact(context.Background(),
		application.Target{TenantID: "acme", Vendor: "fake"},
		model.ContactInput{Email: "ada@example.com"}, model.ContactOptions{})

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", contact.Email)

	recs := sink.all()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "acme", rec.TenantID)
	assert.Equal(t, model.DomainCRM, rec.Domain)
	assert.Equal(t, "fake", rec.Vendor)
	assert.Equal(t, "create_contact", rec.Operation)
	assert.Equal(t, model.ActionSuccess, rec.Status)
	assert.Empty(t, rec.ErrorKind)
	assert.Equal(t, 1, rec.Attempts, "validation call made at construction is not counted")
}

func TestIntegrationService_UsesTenantDefaultVendor(t *testing.T) {
	settings := stubSettings{"acme": {model.DomainCRM: {Vendor: "fake"}}}
	fx := newFactoryFixture(t, settings, 0)
	sink := &memorySink{}
	svc := application.NewIntegrationService(fx.factory, settings, sink, nil)

	_, err := svc.CreateContact(context.Background(), application.Target{TenantID: "acme"},
		model.ContactInput{Email: "ada@example.com"}, model.ContactOptions{})

	require.NoError(t, err)
	assert.Equal(t, "fake", sink.all()[0].Vendor)
}

func TestIntegrationService_NoVendorIsConfigurationError(t *testing.T) {
	fx := newFactoryFixture(t, nil, 0)
	sink := &memorySink{}
	svc := application.NewIntegrationService(fx.factory, stubSettings{}, sink, nil)

	_, err := svc.CreateContact(context.Background(), application.Target{TenantID: "acme"},
		model.ContactInput{Email: "ada@example.com"}, model.ContactOptions{})

	assert.ErrorIs(t, err, model.ErrUnknownVendor)
	assert.ErrorIs(t, err, application.ErrNoDefaultVendor)

	rec := sink.all()[0]
	assert.Equal(t, model.ActionFailure, rec.Status)
	assert.Equal(t, model.ErrorKindConfiguration, rec.ErrorKind)
	assert.Zero(t, rec.Attempts)
}

func TestIntegrationService_RecordsNormalizedFailure(t *testing.T) {
	fx := newFactoryFixture(t, nil, 0)
	sink := &memorySink{}
	svc := application.NewIntegrationService(fx.factory, nil, sink, nil)
	target := application.Target{TenantID: "acme", Vendor: "fake"}

	crm, err := fx.factory.CRM(context.Background(), "acme", "fake")
	require.NoError(t, err)
	crm.(*fakeCRM).createFn = func(context.Context) (*model.Contact, error) {
		return nil, &model.NormalizedError{Kind: model.KindConflict, Message: "duplicate", VendorStatusCode: 409}
	}

	_, err = svc.CreateContact(context.Background(), target, model.ContactInput{Email: "ada@example.com"}, model.ContactOptions{})

	assert.True(t, model.IsKind(err, model.KindConflict))
	rec := sink.all()[0]
	assert.Equal(t, model.ActionFailure, rec.Status)
	assert.Equal(t, model.KindConflict, rec.ErrorKind)
	assert.Equal(t, 1, rec.Attempts)
	assert.Contains(t, rec.Message, "duplicate")
}

func TestIntegrationService_CountsEveryVendorCallOfTheOperation(t *testing.T) {
	fx := newFactoryFixture(t, nil, 0)
	sink := &memorySink{}
	svc := application.NewIntegrationService(fx.factory, nil, sink, nil)

	crm, err := fx.factory.CRM(context.Background(), "acme", "fake")
	require.NoError(t, err)
	fake := crm.(*fakeCRM)
	// A create that hits a duplicate and falls back to a failing update.
	fake.createFn = func(ctx context.Context) (*model.Contact, error) {
		return resilience.Do(ctx, fake.deps.Executor, "update_contact", func(context.Context) (*model.Contact, error) {
			return nil, &model.NormalizedError{Kind: model.KindNotFound, Message: "contact vanished", VendorStatusCode: 404}
		})
	}

	_, err = svc.CreateContact(context.Background(), application.Target{TenantID: "acme", Vendor: "fake"},
		model.ContactInput{Email: "ada@example.com"}, model.ContactOptions{})

	assert.True(t, model.IsKind(err, model.KindNotFound))
	ne, _ := model.AsNormalized(err)
	assert.Equal(t, 1, ne.Attempts)
	assert.Equal(t, 2, sink.all()[0].Attempts)
}

func TestIntegrationService_SinkFailureDoesNotMaskResult(t *testing.T) {
	fx := newFactoryFixture(t, nil, 0)
	sink := &memorySink{err: errors.New("disk full")}
	svc := application.NewIntegrationService(fx.factory, nil, sink, nil)

	contact, err := svc.CreateContact(context.Background(),
		application.Target{TenantID: "acme", Vendor: "fake"},
		model.ContactInput{Email: "ada@example.com"}, model.ContactOptions{})

	require.NoError(t, err)
	assert.NotNil(t, contact)
	assert.Len(t, sink.all(), 1)
}

func TestIntegrationService_WrongDomainProvider(t *testing.T) {
	fx := newFactoryFixture(t, nil, 0)
	sink := &memorySink{}
	svc := application.NewIntegrationService(fx.factory, nil, sink, nil)

	_, err := svc.CreateTicket(context.Background(),
		application.Target{TenantID: "acme", Vendor: "fake"},
		model.TicketInput{Subject: "s", Description: "d"})

	assert.ErrorIs(t, err, model.ErrUnknownVendor)
	assert.Equal(t, model.DomainHelpdesk, sink.all()[0].Domain)
}
