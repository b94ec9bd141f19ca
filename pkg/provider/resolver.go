// Package provider resolves an offramp provider from a URL identifier and
// merges backend records with local capability knowledge.
package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

type Lister interface {
	ListProviders(ctx context.Context) ([]offramp.Provider, error)
}

// Resolve finds the single provider whose slug or UUID equals id. No match,
// or an ambiguous slug, yields ErrProviderNotFound.
func Resolve(providers []offramp.Provider, id string) (offramp.Provider, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return offramp.Provider{}, apperrors.ErrProviderNotFound.WithMessage("provider id is required")
	}

	for _, p := range providers {
		if p.UUID == id {
			return p, nil
		}
	}

	var matches []offramp.Provider
	for _, p := range providers {
		if strings.EqualFold(p.Slug, id) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	return offramp.Provider{}, apperrors.ErrProviderNotFound.WithDetails(id)
}

// Merge attaches registry capabilities to backend provider records.
func Merge(records []offramp.Provider, reg Registry) []offramp.Provider {
	out := make([]offramp.Provider, 0, len(records))
	for _, p := range records {
		if p.Slug == "" {
			p.Slug = offramp.Slug(p.Name)
		}
		if caps, ok := reg.Lookup(p.Slug); ok {
			p.Capabilities = caps
		} else {
			p.Capabilities = offramp.Capabilities{Kind: offramp.KindUnknown}
		}
		out = append(out, p)
	}
	return out
}

// Catalog caches the merged provider list. Until the first successful Load
// every lookup answers ErrProvidersLoading, which is distinct from a
// provider that does not exist.
type Catalog struct {
	mu        sync.RWMutex
	registry  Registry
	providers []offramp.Provider
	loaded    bool
	loadedAt  time.Time
}

func NewCatalog(reg Registry) *Catalog {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Catalog{registry: reg}
}

func (c *Catalog) Load(ctx context.Context, lister Lister) error {
	records, err := lister.ListProviders(ctx)
	if err != nil {
		logger.WithContext(ctx).Warn().Err(err).Msg("Failed to load offramp providers")
		return err
	}

	c.Set(records)
	logger.WithContext(ctx).Info().Int("count", len(records)).Msg("Offramp providers loaded")
	return nil
}

// Set replaces the catalog contents with records merged against the registry.
func (c *Catalog) Set(records []offramp.Provider) {
	merged := Merge(records, c.registry)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = merged
	c.loaded = true
	c.loadedAt = time.Now()
}

func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

func (c *Catalog) List() ([]offramp.Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, apperrors.ErrProvidersLoading
	}
	out := make([]offramp.Provider, len(c.providers))
	copy(out, c.providers)
	return out, nil
}

func (c *Catalog) Resolve(id string) (offramp.Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return offramp.Provider{}, apperrors.ErrProvidersLoading
	}
	return Resolve(c.providers, id)
}
