// Package providertest builds provider dependencies for adapter tests.
package providertest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/transport"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Deps returns dependencies for a provider talking to baseURL with a real
// HTTP transport and a fake clock. The retry policy is the vendor's own, with
// jitter disabled so delays are exact.
func Deps(t testing.TB, domain model.Domain, vendor string, spec provider.Spec, creds model.Credentials, cfg model.ProviderConfig) (provider.Deps, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	id := model.ProviderIdentity{TenantID: "tenant-test", Domain: domain, Vendor: vendor}
	if cfg == nil {
		def, err := model.DefaultConfig(domain)
		if err != nil {
			t.Fatalf("default config: %v", err)
		}
		cfg = def
	}
	policy := spec.Policy
	policy.JitterFraction = 0
	logger := slog.New(slog.DiscardHandler)

	return provider.Deps{
		Identity:    id,
		Credentials: creds,
		Config:      cfg,
		Executor: resilience.NewExecutor(resilience.ExecutorConfig{
			Identity: id,
			Policy:   policy,
			Window:   resilience.NewWindow(spec.RateLimit, clock),
			Clock:    clock,
			Logger:   logger,
		}),
		Transport: transport.NewClient(nil, 5*time.Second, logger),
		Clock:     clock,
		Logger:    logger,
	}, clock
}
