package main

import (
	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/github"
	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/googlecalendar"
	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/hubspot"
	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/sendgrid"
	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/zendesk"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
)

// buildRegistry lists every vendor this binary can talk to. Adding a vendor
// means adding a line here; nothing registers itself.
func buildRegistry(db *sqlite.DB) (*provider.Registry, error) {
	return provider.NewRegistry(
		provider.Bind(model.DomainCRM, hubspot.Vendor, hubspot.Spec, hubspot.New),
		provider.Bind(model.DomainHelpdesk, zendesk.Vendor, zendesk.Spec, zendesk.New),
		provider.Bind(model.DomainHelpdesk, github.Vendor, github.Spec, github.New),
		provider.Bind(model.DomainCalendar, googlecalendar.Vendor, googlecalendar.Spec, googlecalendar.New),
		provider.Bind(model.DomainEmail, sendgrid.Vendor, sendgrid.Spec, sendgrid.New),
		provider.Bind(model.DomainKnowledge, sqlite.KnowledgeVendor, sqlite.KnowledgeSpec, sqlite.NewKnowledge(db)),
	)
}
