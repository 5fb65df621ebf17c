package gateway

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// NewAdapter is the factory keyed by gateway identifier. Adding a provider
// means adding a case here; callers never switch on gateway names themselves.
func NewAdapter(name string) (Adapter, error) {
	switch name {
	case models.GatewayStripe:
		return NewStripeAdapter(), nil
	case models.GatewayRazorpay:
		return NewRazorpayAdapter(), nil
	case models.GatewayCashfree:
		return NewCashfreeAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown gateway %q", name)
	}
}

// Registry holds the initialized adapters and their deployment configs.
// Initialization failures (typically missing credentials) disable only the
// affected gateway; the rest stay usable.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	configs  map[string]models.GatewayConfig
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		configs:  make(map[string]models.GatewayConfig),
	}
}

// Register initializes an adapter with credentials and stores it alongside
// its config.
func (r *Registry) Register(cfg models.GatewayConfig, adapter Adapter, creds Credentials) error {
	if err := adapter.Initialize(creds); err != nil {
		return fmt.Errorf("initialize %s: %w", cfg.Gateway, err)
	}
	r.mu.Lock()
	r.adapters[cfg.Gateway] = adapter
	r.configs[cfg.Gateway] = cfg
	r.mu.Unlock()
	return nil
}

// Adapter returns the initialized adapter for a gateway.
func (r *Registry) Adapter(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("gateway %q is not available", name)
	}
	return a, nil
}

// DetermineSupportedGateways returns the enabled gateways matching a
// currency and country, ordered by priority (lower value first).
func (r *Registry) DetermineSupportedGateways(currency, country string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []models.GatewayConfig
	for name, cfg := range r.configs {
		if _, ok := r.adapters[name]; !ok {
			continue
		}
		if !cfg.Enabled || !cfg.SupportsCurrency(currency) || !cfg.SupportsCountry(country) {
			continue
		}
		matches = append(matches, cfg)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority < matches[j].Priority
		}
		return matches[i].Gateway < matches[j].Gateway
	})

	names := make([]string, 0, len(matches))
	for _, cfg := range matches {
		names = append(names, cfg.Gateway)
	}
	return names
}

// Fallback returns the configured fallback gateway, if one is registered.
func (r *Registry) Fallback() (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, cfg := range r.configs {
		if cfg.Enabled && cfg.IsFallback {
			if a, ok := r.adapters[name]; ok {
				return a, true
			}
		}
	}
	return nil, false
}

// Names returns all registered gateway names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetupRegistry loads gateway configs from the store, resolves credentials
// from the environment and initializes each enabled gateway. A gateway whose
// credentials are missing is skipped with an error log; it does not take the
// others down.
func SetupRegistry(db *gorm.DB) (*Registry, error) {
	var configs []models.GatewayConfig
	if err := db.Where("enabled = ?", true).Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("load gateway configs: %w", err)
	}

	registry := NewRegistry()
	for _, cfg := range configs {
		adapter, err := NewAdapter(cfg.Gateway)
		if err != nil {
			log.Errorf("[Gateway] Skipping config for %s: %v", cfg.Gateway, err)
			continue
		}
		if err := registry.Register(cfg, adapter, CredentialsFromEnv(cfg.Gateway)); err != nil {
			log.Errorf("[Gateway] %s disabled: %v", cfg.Gateway, err)
			continue
		}
		log.Infof("[Gateway] Initialized %s (priority %d)", cfg.Gateway, cfg.Priority)
	}
	return registry, nil
}

// EnsureSeedConfigs inserts the default gateway configs if the table is
// empty: Stripe as the global primary, Razorpay for INR, Cashfree as the
// Indian fallback.
func EnsureSeedConfigs(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.GatewayConfig{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	configs := []models.GatewayConfig{
		{
			Gateway:             models.GatewayStripe,
			Enabled:             true,
			Priority:            1,
			SupportedCurrencies: []string{"USD", "EUR", "GBP", "INR"},
			PaymentMethods:      []string{"card"},
		},
		{
			Gateway:             models.GatewayRazorpay,
			Enabled:             true,
			Priority:            2,
			SupportedCurrencies: []string{"INR"},
			SupportedCountries:  []string{"IN"},
			PaymentMethods:      []string{"card", "upi", "netbanking"},
		},
		{
			Gateway:             models.GatewayCashfree,
			Enabled:             true,
			Priority:            3,
			SupportedCurrencies: []string{"INR"},
			SupportedCountries:  []string{"IN"},
			PaymentMethods:      []string{"card", "upi"},
			IsFallback:          true,
		},
	}
	return db.Create(&configs).Error
}

// CredentialsFromEnv resolves the opaque credential bag for one gateway from
// GATEWAY-prefixed environment variables, e.g. STRIPE_API_KEY,
// RAZORPAY_KEY_ID, CASHFREE_APP_ID.
func CredentialsFromEnv(gatewayName string) Credentials {
	prefix := strings.ToUpper(gatewayName) + "_"
	keys := []string{"api_key", "key_id", "key_secret", "app_id", "secret_key", "webhook_secret", "base_url", "merchant_id"}

	creds := Credentials{}
	for _, key := range keys {
		if v := env.GetEnv(prefix+strings.ToUpper(key), ""); v != "" {
			creds[key] = v
		}
	}
	return creds
}
