// Package icdapi is a client for the WHO ICD-API (ICD-11 MMS linearization).
// Tokens come from the WHO access-management server via the OAuth2 client
// credentials grant. Without credentials the client answers from a local
// source, normally the ingested ICD-11 table.
package icdapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/namaste/tmbridge/internal/platform/cache"
)

var (
	ErrNotFound     = errors.New("icdapi: entity not found")
	ErrInvalidInput = errors.New("icdapi: invalid input")
	// ErrUnavailable is returned when neither the WHO API nor a local
	// source can answer.
	ErrUnavailable = errors.New("icdapi: no ICD-11 source configured")
)

const (
	SourceWHO   = "who"
	SourceLocal = "local"

	entityTTL = 24 * time.Hour
	searchTTL = 6 * time.Hour

	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIURL       string
	Release      string
	Timeout      time.Duration
}

// Entity is the part of an MMS entity the service uses.
type Entity struct {
	Code       string   `json:"code"`
	Title      string   `json:"title"`
	Definition string   `json:"definition,omitempty"`
	Synonyms   []string `json:"synonyms,omitempty"`
	URI        string   `json:"uri,omitempty"`
	Source     string   `json:"source"`
}

type SearchHit struct {
	Code  string  `json:"code"`
	Title string  `json:"title"`
	URI   string  `json:"uri,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// LocalSource answers lookups when the WHO API is not configured.
type LocalSource interface {
	Entity(ctx context.Context, code string) (*Entity, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

type Client struct {
	cfg    Config
	http   *http.Client
	tokens oauth2.TokenSource
	cache  cache.Cache
	local  LocalSource
	logger zerolog.Logger
}

type Option func(*Client)

// WithCache caches live WHO responses: entities for a day, searches for
// six hours.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

func WithLocalSource(l LocalSource) Option {
	return func(cl *Client) { cl.local = l }
}

func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://id.who.int"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://icdaccessmanagement.who.int/connect/token"
	}
	if cfg.Release == "" {
		cfg.Release = "2024-01"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	c := &Client{cfg: cfg, logger: logger.With().Str("component", "icdapi").Logger()}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.ClientID != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{"icdapi_access"},
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		base := &http.Client{Timeout: cfg.Timeout}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c.tokens = cc.TokenSource(ctx)
		c.http = oauth2.NewClient(ctx, c.tokens)
		c.http.Timeout = cfg.Timeout
	}
	return c
}

// Live reports whether requests go to the WHO API.
func (c *Client) Live() bool {
	return c.http != nil
}

// Entity returns the MMS entity for an ICD-11 code.
func (c *Client) Entity(ctx context.Context, code string) (*Entity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	if !c.Live() {
		if c.local == nil {
			return nil, ErrUnavailable
		}
		return c.local.Entity(ctx, code)
	}

	key := cache.Key("who", c.cfg.Release, "entity", code)
	if c.cache != nil {
		var cached Entity
		if cache.GetJSON(ctx, c.cache, key, &cached) {
			return &cached, nil
		}
	}

	e, err := c.fetchEntity(ctx, code)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := cache.SetJSON(ctx, c.cache, key, e, entityTTL); err != nil {
			c.logger.Warn().Err(err).Str("code", code).Msg("failed to cache ICD-11 entity")
		}
	}
	return e, nil
}

// Search runs a flat MMS search. limit is clamped to 1..50.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	if !c.Live() {
		if c.local == nil {
			return nil, ErrUnavailable
		}
		return c.local.Search(ctx, query, limit)
	}

	key := cache.Key("who", c.cfg.Release, "search", strings.ToLower(query))
	var hits []SearchHit
	if c.cache == nil || !cache.GetJSON(ctx, c.cache, key, &hits) {
		var err error
		hits, err = c.fetchSearch(ctx, query)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := cache.SetJSON(ctx, c.cache, key, hits, searchTTL); err != nil {
				c.logger.Warn().Err(err).Str("query", query).Msg("failed to cache ICD-11 search")
			}
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

type Health struct {
	Status        string    `json:"status"`
	Source        string    `json:"source"`
	Authenticated bool      `json:"authenticated"`
	APIURL        string    `json:"api_url,omitempty"`
	Release       string    `json:"release,omitempty"`
	Error         string    `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Health fetches a token when live. In local mode it only reports whether
// a local source is wired.
func (c *Client) Health(ctx context.Context) Health {
	h := Health{CheckedAt: time.Now().UTC()}
	if !c.Live() {
		h.Source = SourceLocal
		h.Status = "healthy"
		if c.local == nil {
			h.Status = "unavailable"
			h.Error = ErrUnavailable.Error()
		}
		return h
	}

	h.Source = SourceWHO
	h.APIURL = c.cfg.APIURL
	h.Release = c.cfg.Release
	tok, err := c.tokens.Token()
	if err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		return h
	}
	h.Authenticated = tok.Valid()
	h.Status = "healthy"
	return h
}

type langValue struct {
	Value string `json:"@value"`
}

type rawEntity struct {
	ID         string    `json:"@id"`
	Code       string    `json:"code"`
	Title      langValue `json:"title"`
	Definition langValue `json:"definition"`
	Synonym    []struct {
		Label langValue `json:"label"`
	} `json:"synonym"`
}

func (c *Client) fetchEntity(ctx context.Context, code string) (*Entity, error) {
	var info struct {
		Code   string `json:"code"`
		StemID string `json:"stemId"`
	}
	infoURL := fmt.Sprintf("%s/icd/release/11/%s/mms/codeinfo/%s", c.cfg.APIURL, c.cfg.Release, url.PathEscape(code))
	if err := c.getJSON(ctx, infoURL, &info); err != nil {
		return nil, fmt.Errorf("codeinfo %s: %w", code, err)
	}
	if info.StemID == "" {
		return nil, fmt.Errorf("codeinfo %s: %w", code, ErrNotFound)
	}

	stemURL, err := c.resolve(info.StemID)
	if err != nil {
		return nil, err
	}
	var raw rawEntity
	if err := c.getJSON(ctx, stemURL, &raw); err != nil {
		return nil, fmt.Errorf("entity %s: %w", code, err)
	}

	e := &Entity{
		Code:       raw.Code,
		Title:      raw.Title.Value,
		Definition: raw.Definition.Value,
		URI:        info.StemID,
		Source:     SourceWHO,
	}
	if e.Code == "" {
		e.Code = code
	}
	for _, s := range raw.Synonym {
		if s.Label.Value != "" {
			e.Synonyms = append(e.Synonyms, s.Label.Value)
		}
	}
	return e, nil
}

func (c *Client) fetchSearch(ctx context.Context, query string) ([]SearchHit, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("flatResults", "true")
	q.Set("highlightingEnabled", "false")
	q.Set("useFlexisearch", "false")
	searchURL := fmt.Sprintf("%s/icd/release/11/%s/mms/search?%s", c.cfg.APIURL, c.cfg.Release, q.Encode())

	var body struct {
		Error               bool   `json:"error"`
		ErrorMessage        string `json:"errorMessage"`
		DestinationEntities []struct {
			ID      string  `json:"id"`
			Title   string  `json:"title"`
			TheCode string  `json:"theCode"`
			Score   float64 `json:"score"`
		} `json:"destinationEntities"`
	}
	if err := c.getJSON(ctx, searchURL, &body); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if body.Error {
		return nil, fmt.Errorf("search %q: %s", query, body.ErrorMessage)
	}

	hits := make([]SearchHit, 0, len(body.DestinationEntities))
	for _, d := range body.DestinationEntities {
		// Residual and chapter nodes carry no code.
		if d.TheCode == "" {
			continue
		}
		hits = append(hits, SearchHit{Code: d.TheCode, Title: d.Title, URI: d.ID, Score: d.Score})
	}
	return hits, nil
}

// resolve maps an entity URI (http://id.who.int/...) onto the configured
// API host.
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("bad entity uri %q: %w", ref, err)
	}
	return c.cfg.APIURL + u.EscapedPath(), nil
}

func (c *Client) getJSON(ctx context.Context, target string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("API-Version", "v2")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("icd-api request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("icd-api status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
