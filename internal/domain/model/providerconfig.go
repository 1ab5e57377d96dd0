package model

import (
	"errors"
	"fmt"
	"net/mail"
	"time"
)

// ProviderConfig is the per-domain, vendor-neutral settings for a provider
// instance. The implementations form a closed union, one variant per domain.
type ProviderConfig interface {
	Domain() Domain
	Validate() error
	providerConfig()
}

// CRMConfig configures CRM providers.
type CRMConfig struct {
	Pipeline      string `yaml:"pipeline" json:"pipeline,omitempty"`
	OwnerID       string `yaml:"owner_id" json:"owner_id,omitempty"`
	DedupeByEmail bool   `yaml:"dedupe_by_email" json:"dedupe_by_email,omitempty"`
}

func (CRMConfig) Domain() Domain  { return DomainCRM }
func (CRMConfig) Validate() error { return nil }
func (CRMConfig) providerConfig() {}

// HelpdeskConfig configures helpdesk providers. Project names the queue the
// vendor files tickets into, e.g. "owner/repo" for GitHub Issues.
type HelpdeskConfig struct {
	Project         string         `yaml:"project" json:"project,omitempty"`
	DefaultPriority TicketPriority `yaml:"default_priority" json:"default_priority,omitempty"`
	DefaultTags     []string       `yaml:"default_tags" json:"default_tags,omitempty"`
}

func (HelpdeskConfig) Domain() Domain  { return DomainHelpdesk }
func (HelpdeskConfig) providerConfig() {}

func (c HelpdeskConfig) Validate() error {
	switch c.DefaultPriority {
	case "", TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh, TicketPriorityUrgent:
		return nil
	}
	return fmt.Errorf("default_priority %q is not a known priority", c.DefaultPriority)
}

// CalendarConfig configures calendar providers.
type CalendarConfig struct {
	CalendarID string `yaml:"calendar_id" json:"calendar_id,omitempty"`
	TimeZone   string `yaml:"time_zone" json:"time_zone,omitempty"`
}

func (CalendarConfig) Domain() Domain  { return DomainCalendar }
func (CalendarConfig) providerConfig() {}

func (c CalendarConfig) Validate() error {
	if c.TimeZone == "" {
		return nil
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("time_zone %q: %w", c.TimeZone, err)
	}
	return nil
}

// Calendar returns CalendarID or "primary" when unset.
func (c CalendarConfig) Calendar() string {
	if c.CalendarID == "" {
		return "primary"
	}
	return c.CalendarID
}

// EmailConfig configures email providers.
type EmailConfig struct {
	FromAddress string `yaml:"from_address" json:"from_address,omitempty"`
	FromName    string `yaml:"from_name" json:"from_name,omitempty"`
	// RenderMarkdown treats text bodies as markdown and sends sanitized HTML.
	RenderMarkdown bool `yaml:"render_markdown" json:"render_markdown,omitempty"`
}

func (EmailConfig) Domain() Domain  { return DomainEmail }
func (EmailConfig) providerConfig() {}

func (c EmailConfig) Validate() error {
	if c.FromAddress == "" {
		return nil
	}
	if _, err := mail.ParseAddress(c.FromAddress); err != nil {
		return fmt.Errorf("from_address %q: %w", c.FromAddress, err)
	}
	return nil
}

// KnowledgeConfig configures knowledge providers.
type KnowledgeConfig struct {
	Collection string `yaml:"collection" json:"collection,omitempty"`
}

func (KnowledgeConfig) Domain() Domain  { return DomainKnowledge }
func (KnowledgeConfig) Validate() error { return nil }
func (KnowledgeConfig) providerConfig() {}

// CollectionName returns Collection or "default" when unset.
func (c KnowledgeConfig) CollectionName() string {
	if c.Collection == "" {
		return "default"
	}
	return c.Collection
}

// DefaultConfig returns the zero-value config variant for d.
func DefaultConfig(d Domain) (ProviderConfig, error) {
	switch d {
	case DomainCRM:
		return CRMConfig{}, nil
	case DomainHelpdesk:
		return HelpdeskConfig{}, nil
	case DomainCalendar:
		return CalendarConfig{}, nil
	case DomainEmail:
		return EmailConfig{}, nil
	case DomainKnowledge:
		return KnowledgeConfig{}, nil
	}
	return nil, fmt.Errorf("unknown domain %q", d)
}

// RateLimit is a sliding-window quota. MaxRequests <= 0 means unlimited.
type RateLimit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

// Unlimited reports whether the quota imposes no bound.
func (r RateLimit) Unlimited() bool { return r.MaxRequests <= 0 }

func (r RateLimit) Validate() error {
	if r.MaxRequests > 0 && r.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

func (r RateLimit) String() string {
	if r.Unlimited() {
		return "unlimited"
	}
	return fmt.Sprintf("%d/%s", r.MaxRequests, r.Window)
}

// ProviderSettings is what a tenant configured for one domain.
type ProviderSettings struct {
	Vendor    string         // Default vendor for the domain; may be empty.
	Config    ProviderConfig // Nil means DefaultConfig.
	RateLimit *RateLimit     // Nil means the vendor default.
}
