package driven

import "github.com/ericfisherdev/vendorbridge/internal/domain/model"

// SettingsResolver returns what a tenant configured for a domain. found is
// false when the tenant has no settings for the domain.
type SettingsResolver interface {
	Settings(tenantID string, domain model.Domain) (settings model.ProviderSettings, found bool, err error)
}
