// Package model holds the vendor-neutral types shared by every integration domain.
package model

import (
	"fmt"
	"strings"
)

// Domain is a category of capability a vendor can fulfil.
type Domain string

const (
	DomainCRM       Domain = "crm"
	DomainHelpdesk  Domain = "helpdesk"
	DomainCalendar  Domain = "calendar"
	DomainEmail     Domain = "email"
	DomainKnowledge Domain = "knowledge"
)

// AllDomains returns every supported domain in a stable order.
func AllDomains() []Domain {
	return []Domain{DomainCRM, DomainHelpdesk, DomainCalendar, DomainEmail, DomainKnowledge}
}

// IsValid reports whether d is one of the supported domains.
func (d Domain) IsValid() bool {
	switch d {
	case DomainCRM, DomainHelpdesk, DomainCalendar, DomainEmail, DomainKnowledge:
		return true
	}
	return false
}

// ParseDomain converts a case-insensitive name into a Domain.
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("unknown domain %q", s)
	}
	return d, nil
}

// AuthMode identifies the credential scheme a provider instance was built with.
type AuthMode string

const (
	AuthModeAPIKey AuthMode = "api_key"
	AuthModeOAuth2 AuthMode = "oauth2"
)

// CacheKey identifies one provider instance: a tenant's binding to a vendor
// within a domain.
type CacheKey struct {
	TenantID string
	Domain   Domain
	Vendor   string
}

func (k CacheKey) String() string {
	return k.TenantID + "/" + string(k.Domain) + "/" + k.Vendor
}

// ProviderIdentity describes a live provider instance. It is fixed once the
// instance has been constructed.
type ProviderIdentity struct {
	TenantID string
	Domain   Domain
	Vendor   string
	AuthMode AuthMode
}

// Key returns the cache key for the identity.
func (id ProviderIdentity) Key() CacheKey {
	return CacheKey{TenantID: id.TenantID, Domain: id.Domain, Vendor: id.Vendor}
}

func (id ProviderIdentity) String() string {
	return id.Key().String() + " (" + string(id.AuthMode) + ")"
}
