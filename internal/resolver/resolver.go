package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	errx "github.com/eflow-agent/server/internal/core/error"
	"github.com/eflow-agent/server/internal/everflow"
	"github.com/eflow-agent/server/internal/metrics"
	logx "github.com/eflow-agent/server/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "eflow.resolver"

// Source supplies complete entity collections.
type Source interface {
	FetchAffiliates(ctx context.Context, limit int) ([]everflow.Affiliate, error)
	FetchOffers(ctx context.Context, limit int) ([]everflow.Offer, error)
	FetchCountries(ctx context.Context, limit int) ([]everflow.Country, error)
}

// Resolution is the outcome of resolving one value. ID is empty when nothing matched.
type Resolution struct {
	Kind        Kind
	Input       any
	ID          string
	Name        string
	Rung        Rung
	Score       float64
	Suggestions []Suggestion
}

func (r Resolution) Found() bool {
	return r.ID != ""
}

// Value is the identifier in its native type: int64 for affiliates and
// offers, string for countries. It is nil when nothing was found.
func (r Resolution) Value() any {
	if !r.Found() {
		return nil
	}
	if r.Kind == KindCountry {
		return r.ID
	}
	if n, err := strconv.ParseInt(r.ID, 10, 64); err == nil {
		return n
	}
	return r.ID
}

type snapshot struct {
	entities []Entity
	fetched  time.Time
}

// Resolver turns names into identifiers. It is safe for concurrent use.
type Resolver struct {
	source      Source
	cache       Cache
	matcher     Matcher
	metrics     *metrics.Metrics
	snapshotTTL time.Duration
	now         func() time.Time

	mu        sync.Mutex
	snapshots map[Kind]snapshot
	fetchMu   map[Kind]*sync.Mutex
}

type Option func(*Resolver)

func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

func WithMatcher(m Matcher) Option {
	return func(r *Resolver) { r.matcher = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithSnapshotTTL bounds how long a fetched collection is reused. 0 reuses it
// for the resolver's lifetime.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.snapshotTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New builds a resolver with its own memory cache unless one is supplied.
func New(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:    source,
		matcher:   DefaultMatcher(),
		now:       time.Now,
		snapshots: make(map[Kind]snapshot),
		fetchMu:   make(map[Kind]*sync.Mutex, len(Kinds)),
	}
	for _, k := range Kinds {
		r.fetchMu[k] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewMemoryCache()
	}
	return r
}

// Resolve returns the identifier for value. A not-found value yields a
// Resolution without ID and a nil error; only fetch failures are errors.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, value any) (Resolution, error) {
	return r.resolve(ctx, kind, value, false)
}

// ResolveWithSuggestions is Resolve plus ranked suggestions whenever no
// confident match exists.
func (r *Resolver) ResolveWithSuggestions(ctx context.Context, kind Kind, value any) (Resolution, error) {
	return r.resolve(ctx, kind, value, true)
}

func (r *Resolver) resolve(ctx context.Context, kind Kind, value any, suggest bool) (res Resolution, err error) {
	if !kind.Valid() {
		return Resolution{Kind: kind, Input: value}, fmt.Errorf("unknown entity kind %q", kind)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(attribute.String("entity.kind", string(kind))),
	)
	defer func() {
		span.SetAttributes(attribute.String("resolution.rung", res.Rung.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolution failed")
		}
		span.End()
	}()

	res = Resolution{Kind: kind, Input: value}

	if id, ok := kind.passThrough(value); ok {
		res.ID, res.Rung, res.Score = id, RungPassThrough, 100
		r.metrics.ObserveResolution(string(kind), res.Rung.String())
		return res, nil
	}

	term := termOf(value)
	if NormalizeTerm(term) == "" {
		r.metrics.ObserveResolution(string(kind), "not_found")
		return res, nil
	}

	if id, ok := r.cache.Get(ctx, kind, term); ok {
		r.metrics.ObserveCache(string(kind), true)
		r.metrics.ObserveResolution(string(kind), RungCached.String())
		res.ID, res.Rung, res.Score = id, RungCached, 100
		return res, nil
	}
	r.metrics.ObserveCache(string(kind), false)

	entities, err := r.entities(ctx, kind)
	if err != nil {
		return res, errx.WrapFetch(fmt.Errorf("resolve %s %q: %w", kind, term, err))
	}

	if kind == KindCountry {
		for _, e := range entities {
			if strings.EqualFold(e.ID, strings.TrimSpace(term)) {
				return r.accept(ctx, res, term, Match{Entity: e, Rung: RungCode, Score: 100}), nil
			}
		}
	}

	if m, ok := r.matcher.Match(term, entities, kind.maxRung()); ok {
		if len(m.Duplicates) > 0 {
			ids := make([]string, 0, len(m.Duplicates))
			for _, d := range m.Duplicates {
				ids = append(ids, d.ID)
			}
			logx.Warn().
				Str("kind", string(kind)).
				Str("term", term).
				Str("chosen_id", m.Entity.ID).
				Strs("duplicate_ids", ids).
				Msg("Duplicate entity name; keeping first match")
		}
		return r.accept(ctx, res, term, m), nil
	}

	r.metrics.ObserveResolution(string(kind), "not_found")
	if suggest {
		res.Suggestions = r.matcher.Suggest(term, entities)
	}
	logx.Debug().Str("kind", string(kind)).Str("term", term).Int("suggestions", len(res.Suggestions)).Msg("No match")
	return res, nil
}

// accept caches the match. A different identifier already cached for the term
// wins and the disagreement is logged.
func (r *Resolver) accept(ctx context.Context, res Resolution, term string, m Match) Resolution {
	stored, _ := r.cache.Put(ctx, res.Kind, term, m.Entity.ID)
	if stored != m.Entity.ID {
		logx.Warn().
			Str("kind", string(res.Kind)).
			Str("term", term).
			Str("cached_id", stored).
			Str("matched_id", m.Entity.ID).
			Msg("Cached identifier differs from match; keeping cached value")
		res.ID, res.Rung, res.Score = stored, RungCached, 100
		r.metrics.ObserveResolution(string(res.Kind), RungCached.String())
		return res
	}

	res.ID, res.Name, res.Rung, res.Score = m.Entity.ID, m.Entity.Name(), m.Rung, m.Score
	r.metrics.ObserveResolution(string(res.Kind), m.Rung.String())
	return res
}

// entities returns the kind's collection, fetching it when there is no fresh
// snapshot. Failed fetches are never memoized.
func (r *Resolver) entities(ctx context.Context, kind Kind) ([]Entity, error) {
	if s, ok := r.freshSnapshot(kind); ok {
		return s, nil
	}

	lock := r.fetchMu[kind]
	lock.Lock()
	defer lock.Unlock()

	if s, ok := r.freshSnapshot(kind); ok {
		return s, nil
	}

	var (
		entities []Entity
		err      error
	)
	switch kind {
	case KindAffiliate:
		var affs []everflow.Affiliate
		if affs, err = r.source.FetchAffiliates(ctx, 0); err == nil {
			entities = affiliateEntities(affs)
		}
	case KindOffer:
		var offers []everflow.Offer
		if offers, err = r.source.FetchOffers(ctx, 0); err == nil {
			entities = offerEntities(offers)
		}
	case KindCountry:
		var countries []everflow.Country
		if countries, err = r.source.FetchCountries(ctx, 0); err == nil {
			entities = countryEntities(countries)
		}
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.snapshots[kind] = snapshot{entities: entities, fetched: r.now()}
	r.mu.Unlock()
	return entities, nil
}

func (r *Resolver) freshSnapshot(kind Kind) ([]Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[kind]
	if !ok {
		return nil, false
	}
	if r.snapshotTTL > 0 && r.now().Sub(s.fetched) >= r.snapshotTTL {
		return nil, false
	}
	return s.entities, true
}
