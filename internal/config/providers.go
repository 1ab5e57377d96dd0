package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SettingsResolver = (*Providers)(nil)

// Providers holds per-tenant provider settings read from a YAML file:
//
//	tenants:
//	  acme:
//	    crm:
//	      vendor: hubspot
//	      rate_limit: {max_requests: 50, window: 10s}
//	      settings:
//	        pipeline: sales
type Providers struct {
	tenants map[string]map[model.Domain]model.ProviderSettings
}

type providersFile struct {
	Tenants map[string]map[model.Domain]domainEntry `yaml:"tenants"`
}

type domainEntry struct {
	Vendor    string           `yaml:"vendor"`
	RateLimit *model.RateLimit `yaml:"rate_limit"`
	Settings  yaml.Node        `yaml:"settings"`
}

// LoadProviders reads the settings file at path. An empty path yields an
// empty set of settings.
func LoadProviders(path string) (*Providers, error) {
	if path == "" {
		return &Providers{tenants: map[string]map[model.Domain]model.ProviderSettings{}}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open providers file: %w", err)
	}
	defer f.Close()

	p, err := ParseProviders(f)
	if err != nil {
		return nil, fmt.Errorf("providers file %s: %w", path, err)
	}
	return p, nil
}

// ParseProviders decodes and validates provider settings. Unknown keys are
// rejected, and each domain's settings node must decode into that domain's
// config variant.
func ParseProviders(r io.Reader) (*Providers, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file providersFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	p := &Providers{tenants: make(map[string]map[model.Domain]model.ProviderSettings, len(file.Tenants))}
	for tenant, domains := range file.Tenants {
		if tenant == "" {
			return nil, errors.New("empty tenant id")
		}
		p.tenants[tenant] = make(map[model.Domain]model.ProviderSettings, len(domains))
		for domain, entry := range domains {
			settings, err := entry.resolve(domain)
			if err != nil {
				return nil, fmt.Errorf("tenant %s %s: %w", tenant, domain, err)
			}
			p.tenants[tenant][domain] = settings
		}
	}
	return p, nil
}

func (e domainEntry) resolve(domain model.Domain) (model.ProviderSettings, error) {
	if !domain.IsValid() {
		return model.ProviderSettings{}, fmt.Errorf("unknown domain %q", domain)
	}
	cfg, err := decodeConfig(domain, &e.Settings)
	if err != nil {
		return model.ProviderSettings{}, err
	}
	if err := cfg.Validate(); err != nil {
		return model.ProviderSettings{}, fmt.Errorf("settings: %w", err)
	}
	if e.RateLimit != nil {
		if err := e.RateLimit.Validate(); err != nil {
			return model.ProviderSettings{}, fmt.Errorf("rate_limit: %w", err)
		}
	}
	return model.ProviderSettings{Vendor: e.Vendor, Config: cfg, RateLimit: e.RateLimit}, nil
}

// decodeConfig decodes node strictly into the config variant for domain.
// An absent node yields the variant's zero value.
func decodeConfig(domain model.Domain, node *yaml.Node) (model.ProviderConfig, error) {
	switch domain {
	case model.DomainCRM:
		return decodeStrict[model.CRMConfig](node)
	case model.DomainHelpdesk:
		return decodeStrict[model.HelpdeskConfig](node)
	case model.DomainCalendar:
		return decodeStrict[model.CalendarConfig](node)
	case model.DomainEmail:
		return decodeStrict[model.EmailConfig](node)
	case model.DomainKnowledge:
		return decodeStrict[model.KnowledgeConfig](node)
	}
	return nil, fmt.Errorf("unknown domain %q", domain)
}

func decodeStrict[C model.ProviderConfig](node *yaml.Node) (model.ProviderConfig, error) {
	var cfg C
	if node.Kind == 0 {
		return cfg, nil
	}
	raw, err := yaml.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// Settings returns the settings tenantID configured for domain.
func (p *Providers) Settings(tenantID string, domain model.Domain) (model.ProviderSettings, bool, error) {
	s, ok := p.tenants[tenantID][domain]
	return s, ok, nil
}

// Tenants returns the configured tenant IDs in sorted order.
func (p *Providers) Tenants() []string {
	out := make([]string, 0, len(p.tenants))
	for t := range p.tenants {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
