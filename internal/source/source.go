// Package source reconciles the on-chain registry with the static catalog.
//
// Every query yields a complete Result tagged with where its items came from:
// the static catalog when no registry is configured, the registry when the
// read succeeds, or an error marker with no items when it fails.
package source

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/domain/property"
	"github.com/R3E-Network/property_registry/internal/metrics"
	"github.com/R3E-Network/property_registry/internal/registry"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

// Kind tags the origin of a Result.
type Kind string

const (
	Fallback Kind = "fallback"
	OnChain  Kind = "onchain"
	Errored  Kind = "error"
)

// Result is one complete answer to "which properties exist".
type Result struct {
	Source Kind                `json:"source"`
	Items  []property.Property `json:"items"`
	Error  string              `json:"error,omitempty"`
}

// Registry is the read side of the registry client.
type Registry interface {
	Address() common.Address
	ListProperties(ctx context.Context) ([]registry.Record, error)
}

// Defaults.
const (
	DefaultStaleAfter  = 30 * time.Second
	DefaultRetries     = 1
	DefaultRetryDelay  = 250 * time.Millisecond
	DefaultReadTimeout = 30 * time.Second
)

// Config tunes a Source.
type Config struct {
	// StaleAfter is how long an on-chain result is served from cache.
	StaleAfter time.Duration
	// Retries is the number of extra attempts after a failed read. Zero
	// selects DefaultRetries; a negative value disables retrying.
	Retries     int
	RetryDelay  time.Duration
	ReadTimeout time.Duration
	// Fallback is served when no registry is configured.
	Fallback []property.Property
}

// Source produces Results. It is safe for concurrent use.
type Source struct {
	reg   Registry
	cache Cache
	cfg   Config
	group singleflight.Group
	log   *logger.Logger
}

// New creates a Source. reg is nil when no registry address is configured.
// cache may be nil, in which case an in-process cache is used.
func New(reg Registry, cache Cache, cfg Config, log *logger.Logger) *Source {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = DefaultRetries
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if log == nil {
		log = logger.NewDefault("source")
	}
	return &Source{reg: reg, cache: cache, cfg: cfg, log: log}
}

// Get returns the current Result. Concurrent callers for the same registry
// share one read; a caller that gives up gets an error Result while the read
// finishes in the background and still populates the cache.
func (s *Source) Get(ctx context.Context) Result {
	if s.reg == nil {
		metrics.RecordSource(string(Fallback))
		return Result{Source: Fallback, Items: clone(s.cfg.Fallback)}
	}

	key := s.cacheKey()
	if res, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.WithError(err).Warn("source cache lookup failed")
	} else if ok {
		metrics.RecordCacheLookup(true)
		metrics.RecordSource(string(res.Source))
		return Result{Source: res.Source, Items: clone(res.Items), Error: res.Error}
	}
	metrics.RecordCacheLookup(false)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReadTimeout)
		defer cancel()

		res := s.read(rctx)
		if res.Source == OnChain {
			if err := s.cache.Set(rctx, key, res, s.cfg.StaleAfter); err != nil {
				s.log.WithError(err).Warn("source cache store failed")
			}
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		res := errorResult(chain.Classify(registry.MethodListProperties, ctx.Err()))
		metrics.RecordSource(string(res.Source))
		return res
	case out := <-ch:
		res := out.Val.(Result)
		metrics.RecordSource(string(res.Source))
		return Result{Source: res.Source, Items: clone(res.Items), Error: res.Error}
	}
}

// Invalidate drops the cached Result so the next Get reads the registry.
func (s *Source) Invalidate(ctx context.Context) error {
	if s.reg == nil {
		return nil
	}
	return s.cache.Delete(ctx, s.cacheKey())
}

func (s *Source) read(ctx context.Context) Result {
	var (
		records []registry.Record
		err     error
	)
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errorResult(chain.Classify(registry.MethodListProperties, ctx.Err()))
			case <-time.After(s.cfg.RetryDelay):
			}
		}
		records, err = s.reg.ListProperties(ctx)
		if err == nil || !retryable(err) {
			break
		}
		s.log.WithError(err).WithField("attempt", attempt+1).Debug("registry read failed")
	}
	if err != nil {
		s.log.WithError(err).WithField("registry", s.reg.Address().Hex()).Warn("registry read failed")
		return errorResult(err)
	}

	items := make([]property.Property, 0, len(records))
	for i, rec := range records {
		p, err := registry.ToProperty(rec)
		if err != nil {
			metrics.RecordDecodeSkip()
			s.log.WithError(err).WithFields(map[string]interface{}{"index": i, "slug": rec.Slug}).Warn("skipping undecodable registry record")
			continue
		}
		items = append(items, p)
	}
	return Result{Source: OnChain, Items: items}
}

func (s *Source) cacheKey() string {
	return "property_registry:source:" + strings.ToLower(s.reg.Address().Hex())
}

func errorResult(err error) Result {
	return Result{Source: Errored, Items: []property.Property{}, Error: chain.MessageOf(err)}
}

func retryable(err error) bool {
	switch chain.KindOf(err) {
	case chain.KindConfig, chain.KindDecode, chain.KindInvalid:
		return false
	}
	return true
}

func clone(items []property.Property) []property.Property {
	out := make([]property.Property, len(items))
	copy(out, items)
	return out
}

// ForAddress builds a Source for the registry at address. An empty address
// yields a fallback-only Source that never touches caller.
func ForAddress(address string, caller registry.Caller, cache Cache, cfg Config, log *logger.Logger) (*Source, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return New(nil, cache, cfg, log), nil
	}
	if !common.IsHexAddress(address) {
		return nil, chain.ConfigError("PROPERTY_REGISTRY_ADDRESS %q is not a hex address", address)
	}
	reg, err := registry.New(common.HexToAddress(address), caller, nil, log)
	if err != nil {
		return nil, err
	}
	return New(reg, cache, cfg, log), nil
}
