package mapping

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/namaste/tmbridge/internal/domain/terminology"
)

// =========== Mock Repository ===========

type mockRepo struct {
	mu       sync.Mutex
	store    map[uuid.UUID]*Mapping
	upserts  int
	searches int
	err      error
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Mapping)}
}

func (r *mockRepo) Upsert(_ context.Context, m *Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.upserts++
	now := time.Date(2024, 1, 1, 0, 0, r.upserts, 0, time.UTC)
	for _, existing := range r.store {
		if existing.cacheKey() == m.cacheKey() {
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
			m.CuratorApproved = existing.CuratorApproved
			m.ApprovedBy = existing.ApprovedBy
			m.ApprovedAt = existing.ApprovedAt
			m.UpdatedAt = now
			cp := *m
			r.store[m.ID] = &cp
			return nil
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	cp := *m
	r.store[m.ID] = &cp
	return nil
}

func (r *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *mockRepo) sorted() []*Mapping {
	out := make([]*Mapping, 0, len(r.store))
	for _, m := range r.store {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallConfidence != out[j].OverallConfidence {
			return out[i].OverallConfidence > out[j].OverallConfidence
		}
		return out[i].cacheKey() < out[j].cacheKey()
	})
	return out
}

func (r *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Mapping, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches++
	if r.err != nil {
		return nil, 0, r.err
	}
	var matched []*Mapping
	for _, m := range r.sorted() {
		if v := params[ParamNamaste]; v != "" && m.NamasteCode != v {
			continue
		}
		if v := params[ParamTM2]; v != "" && m.TM2Code != v {
			continue
		}
		if v := params[ParamICD]; v != "" && m.ICDCode != v {
			continue
		}
		if v := params[ParamLevel]; v != "" && m.ConfidenceLevel != v {
			continue
		}
		if v := params[ParamApproved]; v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: approved must be true or false", ErrInvalidInput)
			}
			if m.CuratorApproved != b {
				continue
			}
		}
		matched = append(matched, m)
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (r *mockRepo) ListAll(_ context.Context) ([]*Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.sorted(), nil
}

func (r *mockRepo) Approve(_ context.Context, id uuid.UUID, curator string, at time.Time) (*Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.CuratorApproved = true
	m.ApprovedBy = &curator
	m.ApprovedAt = &at
	cp := *m
	return &cp, nil
}

func (r *mockRepo) FindByNamaste(_ context.Context, code string) ([]*Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*Mapping
	for _, m := range r.sorted() {
		if m.NamasteCode == code {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *mockRepo) OverallConfidences(_ context.Context) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []float64
	for _, m := range r.store {
		out = append(out, m.OverallConfidence)
	}
	return out, nil
}

// =========== Mock Terminology ===========

type mockTerms struct {
	mu      sync.Mutex
	namaste map[string]*terminology.NamasteCode
	tm2     map[string]*terminology.TM2Code
	icd     map[string]*terminology.ICD11Code
	lookups int
}

func newMockTerms() *mockTerms {
	t := &mockTerms{
		namaste: map[string]*terminology.NamasteCode{
			"AYU-JW": {Code: "AYU-JW", Display: "Jwara", EnglishName: "Fever", System: "Ayurveda", Synonyms: "Santapa;Pyrexia"},
			"AYU-PR": {Code: "AYU-PR", Display: "Prameha", EnglishName: "Diabetes", System: "Ayurveda"},
		},
		tm2: map[string]*terminology.TM2Code{},
		icd: map[string]*terminology.ICD11Code{
			"MG26": {Code: "MG26", Title: "Fever of other or unknown origin", Synonyms: []string{"Pyrexia"}, Module: "MMS"},
			"5A11": {Code: "5A11", Title: "Type 2 diabetes mellitus", Synonyms: []string{"Diabetes"}, Module: "MMS"},
			"8A80": {Code: "8A80", Title: "Migraine", Module: "MMS"},
		},
	}
	for _, c := range []*terminology.TM2Code{
		terminology.NewTM2Code("SM00", "Fever disorder (jwara)", terminology.ClassBlock, ""),
		terminology.NewTM2Code("SM10", "Prameha disorder (diabetes)", terminology.ClassBlock, ""),
	} {
		t.tm2[c.Code] = c
	}
	return t
}

func (t *mockTerms) SearchNamaste(_ context.Context, query string, limit int) ([]*terminology.NamasteCode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := strings.ToLower(query)
	var out []*terminology.NamasteCode
	for _, code := range sortedCodes(t.namaste) {
		c := t.namaste[code]
		if strings.Contains(strings.ToLower(c.Display), q) || strings.Contains(strings.ToLower(c.EnglishName), q) {
			out = append(out, c)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func sortedCodes[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *mockTerms) LookupNamaste(_ context.Context, code string) (*terminology.NamasteCode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lookups++
	if c, ok := t.namaste[code]; ok {
		return c, nil
	}
	return nil, terminology.ErrNotFound
}

func (t *mockTerms) LookupTM2(_ context.Context, code string) (*terminology.TM2Code, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.tm2[code]; ok {
		return c, nil
	}
	return nil, terminology.ErrNotFound
}

func (t *mockTerms) LookupICD11(_ context.Context, code string) (*terminology.ICD11Code, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.icd[code]; ok {
		return c, nil
	}
	return nil, terminology.ErrNotFound
}

// gatedTerms holds the first NAMASTE lookup until release is closed and
// then fails if the lookup context was cancelled.
type gatedTerms struct {
	*mockTerms
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (t *gatedTerms) LookupNamaste(ctx context.Context, code string) (*terminology.NamasteCode, error) {
	t.once.Do(func() { close(t.entered) })
	<-t.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.mockTerms.LookupNamaste(ctx, code)
}

// =========== Score Recorder ===========

type recordingObserver struct {
	mu     sync.Mutex
	layers map[string]int
}

func (o *recordingObserver) ObserveScore(layer string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.layers == nil {
		o.layers = map[string]int{}
	}
	o.layers[layer]++
}
