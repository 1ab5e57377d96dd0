package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// FactoryConfig holds the collaborators of a ProviderFactory. Registry,
// Credentials and Transport are required.
type FactoryConfig struct {
	Registry    *provider.Registry
	Credentials driven.CredentialResolver
	Settings    driven.SettingsResolver // Optional per-tenant overrides.
	Transport   driven.Transport
	Clock       clockwork.Clock
	Observer    resilience.Observer
	Logger      *slog.Logger
	// TTL bounds how long an instance is reused after validation. Zero keeps
	// instances until Invalidate is called.
	TTL time.Duration
}

type cacheEntry struct {
	provider    driven.Provider
	validatedAt time.Time
}

// ProviderFactory resolves (tenant, domain, vendor) to a live provider
// instance and caches it. Concurrent first requests for the same key share a
// single construction.
type ProviderFactory struct {
	registry    *provider.Registry
	credentials driven.CredentialResolver
	settings    driven.SettingsResolver
	transport   driven.Transport
	clock       clockwork.Clock
	observer    resilience.Observer
	logger      *slog.Logger
	ttl         time.Duration

	mu    sync.RWMutex
	cache map[model.CacheKey]cacheEntry
	// Invalidation bumps these; a construction that started under an older
	// generation returns its instance but does not cache it.
	keyGen    map[model.CacheKey]uint64
	tenantGen map[string]uint64
	group     singleflight.Group
}

// NewProviderFactory creates a factory from cfg.
func NewProviderFactory(cfg FactoryConfig) *ProviderFactory {
	f := &ProviderFactory{
		registry:    cfg.Registry,
		credentials: cfg.Credentials,
		settings:    cfg.Settings,
		transport:   cfg.Transport,
		clock:       cfg.Clock,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		ttl:         cfg.TTL,
		cache:       make(map[model.CacheKey]cacheEntry),
		keyGen:      make(map[model.CacheKey]uint64),
		tenantGen:   make(map[string]uint64),
	}
	if f.clock == nil {
		f.clock = clockwork.NewRealClock()
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Registry returns the bindings the factory constructs from.
func (f *ProviderFactory) Registry() *provider.Registry { return f.registry }

// GetProvider returns the cached instance for the key or constructs, validates
// and caches a new one. Failures are *model.ConfigurationError and are never
// cached. If ctx ends while waiting on another caller's construction, a
// KindNetwork error is returned and the construction continues for the others.
func (f *ProviderFactory) GetProvider(ctx context.Context, tenantID string, domain model.Domain, vendor string) (driven.Provider, error) {
	key := model.CacheKey{TenantID: tenantID, Domain: domain, Vendor: vendor}

	if p, ok := f.cached(key); ok {
		return p, nil
	}

	// Construction is detached from the first caller's cancellation so that
	// one impatient caller cannot fail everyone sharing the flight.
	buildCtx := context.WithoutCancel(ctx)
	gen := f.generation(key)
	ch := f.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		if p, ok := f.cached(key); ok {
			return p, nil
		}
		return f.construct(buildCtx, key, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(driven.Provider), nil
	case <-ctx.Done():
		return nil, resilience.FromError(ctx.Err())
	}
}

// Invalidate drops the cached instance for key, e.g. after credential
// rotation. A construction already in flight for key is not cached when it
// finishes, and later callers start a fresh one.
func (f *ProviderFactory) Invalidate(key model.CacheKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyGen[key]++
	delete(f.cache, key)
}

// InvalidateTenant drops every cached instance belonging to tenantID, with
// the same in-flight guarantee as Invalidate.
func (f *ProviderFactory) InvalidateTenant(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenantGen[tenantID]++
	for k := range f.cache {
		if k.TenantID == tenantID {
			delete(f.cache, k)
		}
	}
}

// Len returns the number of cached instances, including expired ones not yet replaced.
func (f *ProviderFactory) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

func (f *ProviderFactory) generation(key model.CacheKey) uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.generationLocked(key)
}

// Both counters only grow, so their sum changes whenever either does.
func (f *ProviderFactory) generationLocked(key model.CacheKey) uint64 {
	return f.keyGen[key] + f.tenantGen[key.TenantID]
}

func (f *ProviderFactory) cached(key model.CacheKey) (driven.Provider, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.cache[key]
	if !ok {
		return nil, false
	}
	if f.ttl > 0 && !f.clock.Now().Before(e.validatedAt.Add(f.ttl)) {
		return nil, false
	}
	return e.provider, true
}

func (f *ProviderFactory) construct(ctx context.Context, key model.CacheKey, gen uint64) (driven.Provider, error) {
	fail := func(reason, err error) error {
		return &model.ConfigurationError{Key: key, Reason: reason, Err: err}
	}

	binding, ok := f.registry.Lookup(key.Domain, key.Vendor)
	if !ok {
		return nil, fail(model.ErrUnknownVendor, nil)
	}

	creds, err := f.credentials.Resolve(ctx, key.TenantID, key.Domain, key.Vendor)
	if errors.Is(err, driven.ErrNoCredentials) || (err == nil && creds == nil) {
		return nil, fail(model.ErrCredentialsNotFound, nil)
	}
	if err != nil {
		return nil, fail(model.ErrCredentialsNotFound, fmt.Errorf("resolve credentials: %w", err))
	}
	if !binding.Spec.Accepts(creds.AuthMode()) {
		return nil, fail(model.ErrInvalidCredentials,
			fmt.Errorf("vendor does not accept %s credentials", creds.AuthMode()))
	}
	if err := creds.Validate(); err != nil {
		return nil, fail(model.ErrInvalidCredentials, err)
	}

	cfg, limit, err := f.resolveSettings(key, binding.Spec)
	if err != nil {
		return nil, fail(model.ErrInvalidConfig, err)
	}

	id := model.ProviderIdentity{
		TenantID: key.TenantID,
		Domain:   key.Domain,
		Vendor:   key.Vendor,
		AuthMode: creds.AuthMode(),
	}
	logger := f.logger.With("provider", key.String())
	executor := resilience.NewExecutor(resilience.ExecutorConfig{
		Identity: id,
		Policy:   binding.Spec.Policy,
		Window:   resilience.NewWindow(limit, f.clock),
		Clock:    f.clock,
		Observer: f.observer,
		Logger:   logger,
	})

	p, err := binding.New(provider.Deps{
		Identity:    id,
		Credentials: creds,
		Config:      cfg,
		Executor:    executor,
		Transport:   f.transport,
		Clock:       f.clock,
		Logger:      logger,
	})
	if err != nil {
		return nil, fail(model.ErrInvalidConfig, err)
	}

	if binding.Spec.ValidateOnConstruct {
		if err := p.Validate(ctx); err != nil {
			logger.Warn("provider validation failed", "kind", model.KindOf(err), "error", err)
			if model.IsKind(err, model.KindAuthentication) {
				return nil, fail(model.ErrInvalidCredentials, err)
			}
			return nil, fail(model.ErrValidationFailed, err)
		}
	}

	f.mu.Lock()
	current := f.generationLocked(key) == gen
	if current {
		f.cache[key] = cacheEntry{provider: p, validatedAt: f.clock.Now()}
	}
	f.mu.Unlock()
	if !current {
		logger.Info("provider invalidated during construction; not cached")
		return p, nil
	}

	logger.Info("provider ready",
		"auth_mode", id.AuthMode,
		"rate_limit", limit.String(),
		"validated", binding.Spec.ValidateOnConstruct,
	)
	return p, nil
}

// resolveSettings merges tenant settings over the vendor defaults.
func (f *ProviderFactory) resolveSettings(key model.CacheKey, spec provider.Spec) (model.ProviderConfig, model.RateLimit, error) {
	limit := spec.RateLimit

	var settings model.ProviderSettings
	if f.settings != nil {
		s, found, err := f.settings.Settings(key.TenantID, key.Domain)
		if err != nil {
			return nil, limit, fmt.Errorf("load tenant settings: %w", err)
		}
		if found {
			settings = s
		}
	}

	cfg := settings.Config
	if cfg == nil {
		var err error
		if cfg, err = model.DefaultConfig(key.Domain); err != nil {
			return nil, limit, err
		}
	}
	if cfg.Domain() != key.Domain {
		return nil, limit, fmt.Errorf("%s settings supplied for %s provider", cfg.Domain(), key.Domain)
	}
	if err := cfg.Validate(); err != nil {
		return nil, limit, err
	}

	if settings.RateLimit != nil {
		if err := settings.RateLimit.Validate(); err != nil {
			return nil, limit, err
		}
		limit = *settings.RateLimit
	}
	return cfg, limit, nil
}

func typedProvider[P driven.Provider](ctx context.Context, f *ProviderFactory, tenantID string, domain model.Domain, vendor string) (P, error) {
	var zero P
	p, err := f.GetProvider(ctx, tenantID, domain, vendor)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(P)
	if !ok {
		return zero, &model.ConfigurationError{
			Key:    model.CacheKey{TenantID: tenantID, Domain: domain, Vendor: vendor},
			Reason: model.ErrUnsupportedDomain,
		}
	}
	return typed, nil
}

// CRM returns the tenant's CRM provider for vendor.
func (f *ProviderFactory) CRM(ctx context.Context, tenantID, vendor string) (driven.CRM, error) {
	return typedProvider[driven.CRM](ctx, f, tenantID, model.DomainCRM, vendor)
}

// Helpdesk returns the tenant's helpdesk provider for vendor.
func (f *ProviderFactory) Helpdesk(ctx context.Context, tenantID, vendor string) (driven.Helpdesk, error) {
	return typedProvider[driven.Helpdesk](ctx, f, tenantID, model.DomainHelpdesk, vendor)
}

// Calendar returns the tenant's calendar provider for vendor.
func (f *ProviderFactory) Calendar(ctx context.Context, tenantID, vendor string) (driven.Calendar, error) {
	return typedProvider[driven.Calendar](ctx, f, tenantID, model.DomainCalendar, vendor)
}

// Email returns the tenant's email provider for vendor.
func (f *ProviderFactory) Email(ctx context.Context, tenantID, vendor string) (driven.Email, error) {
	return typedProvider[driven.Email](ctx, f, tenantID, model.DomainEmail, vendor)
}

// Knowledge returns the tenant's knowledge provider for vendor.
func (f *ProviderFactory) Knowledge(ctx context.Context, tenantID, vendor string) (driven.Knowledge, error) {
	return typedProvider[driven.Knowledge](ctx, f, tenantID, model.DomainKnowledge, vendor)
}
