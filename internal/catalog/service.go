package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-pricing/internal/obs"
	"github.com/noah-isme/checkout-pricing/internal/pricing"
)

// Service owns the active catalog. Writers replace the snapshot; readers get
// clones. With a shared cache every write is published to Redis under a lock
// and readers pick up snapshots published by other instances.
type Service struct {
	cache    *Cache
	validate *validator.Validate
	strict   bool
	logger   zerolog.Logger
	metrics  *obs.CheckoutMetrics

	writeMu sync.Mutex
	mu      sync.RWMutex
	records map[string]Record
	loaded  bool
	version string
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Cache   *Cache
	Strict  bool
	Logger  zerolog.Logger
	Metrics *obs.CheckoutMetrics
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		cache:    cfg.Cache,
		validate: NewValidator(),
		strict:   cfg.Strict,
		logger:   cfg.Logger.With().Str("component", "catalog").Logger(),
		metrics:  cfg.Metrics,
		records:  map[string]Record{},
	}
}

// LoadFile replaces the catalog with the records stored at path.
func (s *Service) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	records, err := Decode(f)
	if err != nil {
		return err
	}
	return s.Replace(ctx, records)
}

// Replace swaps the whole catalog. Nothing changes if any record is rejected.
func (s *Service) Replace(ctx context.Context, records []Record) error {
	next := make(map[string]Record, len(records))
	for _, rec := range records {
		rec, err := s.check(rec)
		if err != nil {
			return err
		}
		next[rec.ID] = rec
	}
	if s.strict {
		if err := buildCatalog(next).Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
	}
	return s.write(ctx, func(map[string]Record) (map[string]Record, error) {
		return next, nil
	})
}

// Upsert inserts or overwrites a single entry of the latest catalog.
func (s *Service) Upsert(ctx context.Context, rec Record) error {
	rec, err := s.check(rec)
	if err != nil {
		return err
	}
	return s.write(ctx, func(current map[string]Record) (map[string]Record, error) {
		current[rec.ID] = rec
		if s.strict {
			if err := buildCatalog(current).Validate(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
			}
		}
		return current, nil
	})
}

// write applies mutate to a copy of the latest catalog, publishes the result
// and only then makes it active locally.
func (s *Service) write(ctx context.Context, mutate func(map[string]Record) (map[string]Record, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.cache.Lock(ctx, func(ctx context.Context) error {
		if err := s.pull(ctx); err != nil {
			return fmt.Errorf("refresh catalog: %w", err)
		}
		s.mu.RLock()
		current := make(map[string]Record, len(s.records)+1)
		for id, rec := range s.records {
			current[id] = rec
		}
		s.mu.RUnlock()

		next, err := mutate(current)
		if err != nil {
			return err
		}
		snapshot := sortedRecords(next)
		version, err := s.cache.Put(ctx, snapshot)
		if err != nil {
			return fmt.Errorf("publish catalog: %w", err)
		}

		s.mu.Lock()
		s.records = next
		s.loaded = true
		s.version = version
		s.mu.Unlock()

		s.observeSize(len(snapshot))
		s.logger.Info().
			Int("items", len(snapshot)).
			Bool("shared", s.cache.Enabled()).
			Str("version", version).
			Msg("catalog updated")
		return nil
	})
}

// Restore loads the catalog cached in Redis. It reports whether a snapshot was found.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	var records []Record
	version, found, err := s.cache.Get(ctx, &records)
	if err != nil || !found {
		return false, err
	}
	next := make(map[string]Record, len(records))
	for _, rec := range records {
		next[rec.ID] = rec
	}
	s.mu.Lock()
	s.records = next
	s.loaded = true
	s.version = version
	s.mu.Unlock()
	s.observeSize(len(next))
	s.logger.Info().Int("items", len(next)).Str("version", version).Msg("catalog restored from cache")
	return true, nil
}

// pull restores the shared snapshot when its version differs from the local one.
func (s *Service) pull(ctx context.Context) error {
	if !s.cache.Enabled() {
		return nil
	}
	remote, found, err := s.cache.Version(ctx)
	if err != nil {
		return err
	}
	s.mu.RLock()
	local := s.version
	s.mu.RUnlock()
	if !found || remote == local {
		return nil
	}
	_, err = s.Restore(ctx)
	return err
}

// Records returns the latest entries ordered by identifier.
func (s *Service) Records(ctx context.Context) []Record {
	if err := s.pull(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("refresh catalog")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRecords(s.records)
}

// Loaded reports whether a catalog has been loaded, restored or written.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Snapshot returns an independent pricing catalog of the latest entries.
// When the shared cache cannot be reached a loaded catalog is served as is.
func (s *Service) Snapshot(ctx context.Context) (*pricing.Catalog, error) {
	if err := s.pull(ctx); err != nil {
		if !s.Loaded() {
			return nil, fmt.Errorf("restore catalog: %w", err)
		}
		s.logger.Warn().Err(err).Msg("refresh catalog")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil, ErrCatalogNotLoaded
	}
	return buildCatalog(s.records), nil
}

// Strict reports whether the validation layer is on.
func (s *Service) Strict() bool { return s.strict }

// check normalises rec and, in strict mode, validates it field by field.
func (s *Service) check(rec Record) (Record, error) {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.Bundle != nil {
		bundle := *rec.Bundle
		bundle.Partner = strings.TrimSpace(bundle.Partner)
		rec.Bundle = &bundle
	}
	item, err := rec.Item()
	if err != nil {
		return Record{}, err
	}
	if !s.strict {
		return rec, nil
	}
	if err := s.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return Record{}, &RecordError{ID: rec.ID, Fields: fieldErrors(verrs)}
		}
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := pricing.ValidateItem(item); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return rec, nil
}

func (s *Service) observeSize(n int) {
	if s.metrics != nil {
		s.metrics.CatalogSize.Set(float64(n))
	}
}

func sortedRecords(records map[string]Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func buildCatalog(records map[string]Record) *pricing.Catalog {
	c := pricing.NewCatalog()
	for _, rec := range records {
		// records were converted once already on the way in
		if item, err := rec.Item(); err == nil {
			c.AddItem(item)
		}
	}
	return c
}

// RecordError lists the fields of one record that failed validation.
type RecordError struct {
	ID     string
	Fields map[string]string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("catalog record %q: %d invalid field(s)", e.ID, len(e.Fields))
}

// Unwrap makes RecordError match ErrInvalidRecord.
func (e *RecordError) Unwrap() error { return ErrInvalidRecord }

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}
