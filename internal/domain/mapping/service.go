package mapping

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/namaste/tmbridge/internal/domain/scoring"
	"github.com/namaste/tmbridge/internal/domain/terminology"
	"github.com/namaste/tmbridge/internal/platform/cache"
	"github.com/namaste/tmbridge/internal/platform/telemetry"
)

// ErrInvalidInput marks caller errors.
var ErrInvalidInput = errors.New("invalid input")

// Terminology resolves the codes of a chain.
type Terminology interface {
	SearchNamaste(ctx context.Context, query string, limit int) ([]*terminology.NamasteCode, error)
	LookupNamaste(ctx context.Context, code string) (*terminology.NamasteCode, error)
	LookupTM2(ctx context.Context, code string) (*terminology.TM2Code, error)
	LookupICD11(ctx context.Context, code string) (*terminology.ICD11Code, error)
}

// ScoreObserver records computed confidences.
type ScoreObserver interface {
	ObserveScore(layer string, confidence float64)
}

type nopObserver struct{}

func (nopObserver) ObserveScore(string, float64) {}

const defaultCacheTTL = 10 * time.Minute

type Service struct {
	repo     Repository
	terms    Terminology
	logger   zerolog.Logger
	cache    cache.Cache
	cacheTTL time.Duration
	observer ScoreObserver
	inflight singleflight.Group
	now      func() time.Time
}

type Option func(*Service)

// WithCache serves repeated Score calls for the same chain from c.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithObserver(o ScoreObserver) Option {
	return func(s *Service) { s.observer = o }
}

func NewService(repo Repository, terms Terminology, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		terms:    terms,
		logger:   logger,
		cacheTTL: defaultCacheTTL,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func chainKey(namaste, tm2, icd string) string {
	return cache.Key("mapping", namaste, tm2, icd)
}

func (s *Service) observe(b scoring.Breakdown) {
	s.observer.ObserveScore(telemetry.LayerNamasteTM2, b.TM2Confidence)
	s.observer.ObserveScore(telemetry.LayerTM2ICD, b.ICDConfidence)
	s.observer.ObserveScore(telemetry.LayerOverall, b.OverallConfidence)
}

// resolve loads the three codes of a chain.
func (s *Service) resolve(ctx context.Context, req ScoreRequest) (*terminology.NamasteCode, *terminology.TM2Code, *terminology.ICD11Code, error) {
	n, err := s.terms.LookupNamaste(ctx, req.NamasteCode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("namaste %s: %w", req.NamasteCode, err)
	}
	t, err := s.terms.LookupTM2(ctx, req.TM2Code)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tm2 %s: %w", req.TM2Code, err)
	}
	i, err := s.terms.LookupICD11(ctx, req.ICDCode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("icd11 %s: %w", req.ICDCode, err)
	}
	return n, t, i, nil
}

// Score resolves the chain, scores it and upserts the mapping. Results are
// cached per chain until the mapping is approved or rescored.
func (s *Service) Score(ctx context.Context, req ScoreRequest) (*Mapping, error) {
	req.NamasteCode = strings.TrimSpace(req.NamasteCode)
	req.TM2Code = strings.TrimSpace(req.TM2Code)
	req.ICDCode = strings.TrimSpace(req.ICDCode)
	if req.NamasteCode == "" || req.TM2Code == "" || req.ICDCode == "" {
		return nil, fmt.Errorf("%w: namaste_code, tm2_code and icd_code are required", ErrInvalidInput)
	}

	key := chainKey(req.NamasteCode, req.TM2Code, req.ICDCode)
	if s.cache != nil {
		var cached Mapping
		if cache.GetJSON(ctx, s.cache, key, &cached) {
			return &cached, nil
		}
	}

	// Coalesced callers share this call, so one caller going away must not
	// fail the others.
	v, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		return s.score(context.WithoutCancel(ctx), req)
	})
	if err != nil {
		return nil, err
	}
	m := *v.(*Mapping)
	return &m, nil
}

func (s *Service) score(ctx context.Context, req ScoreRequest) (*Mapping, error) {
	n, t, i, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	b := scoring.ScoreChain(n.ToRecord(), t.ToRecord(), i.ToRecord())
	m := newMapping(n, t, i)
	m.applyScores(b)
	if err := s.repo.Upsert(ctx, m); err != nil {
		return nil, err
	}
	s.observe(b)

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, m.cacheKey(), m, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", m.cacheKey()).Msg("caching mapping")
		}
	}

	s.logger.Info().
		Str("namaste", m.NamasteCode).Str("tm2", m.TM2Code).Str("icd", m.ICDCode).
		Float64("overall", m.OverallConfidence).Str("level", m.ConfidenceLevel).
		Msg("mapping scored")
	return m, nil
}

// ScoreRecords scores caller-supplied records without persisting anything.
func (s *Service) ScoreRecords(req ScoreRecordsRequest) scoring.Breakdown {
	b := scoring.ScoreChain(req.Namaste, req.TM2, req.ICD)
	s.observe(b)
	return b
}

// Rescore recomputes every stored mapping from the current terminology using
// at most concurrency workers. A mapping whose codes no longer resolve is
// counted as failed and left untouched.
func (s *Service) Rescore(ctx context.Context, concurrency int) (*RescoreResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	start := s.now()

	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}

	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, m := range all {
		m := m
		g.Go(func() error {
			if err := s.rescoreOne(gctx, m); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				s.logger.Warn().Err(err).Str("id", m.ID.String()).Msg("rescore failed")
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("clearing mapping cache")
		}
	}

	res := &RescoreResult{
		Total:    len(all),
		Updated:  int(updated.Load()),
		Failed:   int(failed.Load()),
		Duration: s.now().Sub(start),
	}
	s.logger.Info().Int("total", res.Total).Int("updated", res.Updated).Int("failed", res.Failed).
		Dur("duration", res.Duration).Msg("rescore complete")
	return res, nil
}

func (s *Service) rescoreOne(ctx context.Context, m *Mapping) error {
	n, t, i, err := s.resolve(ctx, ScoreRequest{NamasteCode: m.NamasteCode, TM2Code: m.TM2Code, ICDCode: m.ICDCode})
	if err != nil {
		return err
	}
	b := scoring.ScoreChain(n.ToRecord(), t.ToRecord(), i.ToRecord())
	next := newMapping(n, t, i)
	next.ID = m.ID
	next.applyScores(b)
	if err := s.repo.Upsert(ctx, next); err != nil {
		return err
	}
	s.observe(b)
	return nil
}

// Approve marks a mapping as reviewed by curator.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, curator string) (*Mapping, error) {
	if curator == "" {
		return nil, fmt.Errorf("%w: curator is required", ErrInvalidInput)
	}
	m, err := s.repo.Approve(ctx, id, curator, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, m.cacheKey()); err != nil {
			s.logger.Warn().Err(err).Str("key", m.cacheKey()).Msg("invalidating mapping cache")
		}
	}
	s.logger.Info().Str("id", id.String()).Str("curator", curator).Msg("mapping approved")
	return m, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Mapping, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Mapping, int, error) {
	return s.Search(ctx, nil, limit, offset)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Mapping, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if level, ok := params[ParamLevel]; ok && level != "" {
		switch level {
		case scoring.LevelHigh, scoring.LevelMedium, scoring.LevelLow:
		default:
			return nil, 0, fmt.Errorf("%w: level must be high, medium or low", ErrInvalidInput)
		}
	}
	if approved, ok := params[ParamApproved]; ok && approved != "" {
		if _, err := strconv.ParseBool(approved); err != nil {
			return nil, 0, fmt.Errorf("%w: approved must be true or false", ErrInvalidInput)
		}
	}
	return s.repo.Search(ctx, params, limit, offset)
}

// Stats summarises the overall confidence of every stored mapping.
func (s *Service) Stats(ctx context.Context) (scoring.Stats, error) {
	scores, err := s.repo.OverallConfidences(ctx)
	if err != nil {
		return scoring.Stats{}, err
	}
	return scoring.Summarize(scores), nil
}
