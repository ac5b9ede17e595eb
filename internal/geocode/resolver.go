package geocode

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/storeit/dashboard/internal/logger"
)

// Searcher looks up address results by postal code. *Client implements it.
type Searcher interface {
	SearchPostal(ctx context.Context, postalCode string) ([]Result, error)
}

// Resolver turns postal codes into display addresses.
// Successful lookups are cached per postal code; failures are logged and not cached.
type Resolver struct {
	searcher Searcher
	workers  int
	log      *logger.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver creates a Resolver that runs at most workers lookups at once.
func NewResolver(searcher Searcher, workers int, log *logger.Logger) *Resolver {
	if workers < 1 {
		workers = 1
	}
	return &Resolver{
		searcher: searcher,
		workers:  workers,
		log:      log.WithComponent("geocode"),
		cache:    make(map[string]string),
	}
}

// Address returns the first result's address for postalCode, or false when none is available.
func (r *Resolver) Address(ctx context.Context, postalCode string) (string, bool) {
	postalCode = strings.TrimSpace(postalCode)
	if postalCode == "" {
		return "", false
	}

	r.mu.RLock()
	address, ok := r.cache[postalCode]
	r.mu.RUnlock()
	if ok {
		return address, true
	}

	results, err := r.searcher.SearchPostal(ctx, postalCode)
	if err != nil {
		r.log.Warn("Address lookup failed", map[string]interface{}{
			"postal_code": postalCode,
			"error":       err.Error(),
		})
		return "", false
	}
	if len(results) == 0 || results[0].Address == "" {
		r.log.Info("No address found for postal code", map[string]interface{}{
			"postal_code": postalCode,
		})
		return "", false
	}

	address = results[0].Address
	r.mu.Lock()
	r.cache[postalCode] = address
	r.mu.Unlock()
	return address, true
}

// Addresses resolves each distinct postal code once. Codes without an address are absent from the result.
func (r *Resolver) Addresses(ctx context.Context, postalCodes []string) map[string]string {
	unique := make([]string, 0, len(postalCodes))
	seen := make(map[string]struct{}, len(postalCodes))
	for _, code := range postalCodes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		unique = append(unique, code)
	}

	var mu sync.Mutex
	addresses := make(map[string]string, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, code := range unique {
		g.Go(func() error {
			if address, ok := r.Address(gctx, code); ok {
				mu.Lock()
				addresses[code] = address
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	r.log.Debug("Resolved postal codes", map[string]interface{}{
		"requested": len(unique),
		"resolved":  len(addresses),
	})
	return addresses
}
