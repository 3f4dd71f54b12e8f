package fhir

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode  string   `json:"mode,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// SearchEntry is one resource in a searchset, addressed by type and id.
type SearchEntry struct {
	ResourceType string
	ID           string
	Resource     interface{}
}

// NewSearchBundle creates a searchset Bundle. Entries with a resource type
// and id get a fullUrl under baseURL. A next link is added when more results
// remain past offset+len(entries).
func NewSearchBundle(entries []SearchEntry, total int, baseURL, selfURL string, offset int) (*Bundle, error) {
	now := time.Now().UTC()
	out := make([]BundleEntry, len(entries))
	for i, e := range entries {
		raw, err := json.Marshal(e.Resource)
		if err != nil {
			return nil, fmt.Errorf("encoding bundle entry %d: %w", i, err)
		}
		out[i] = BundleEntry{
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		}
		if e.ResourceType != "" && e.ID != "" {
			out[i].FullURL = fmt.Sprintf("%s/%s/%s", baseURL, e.ResourceType, e.ID)
		}
	}

	links := []BundleLink{{Relation: "self", URL: selfURL}}
	if next := offset + len(entries); len(entries) > 0 && next < total {
		links = append(links, BundleLink{Relation: "next", URL: withOffset(selfURL, next)})
	}

	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         links,
		Entry:        out,
	}, nil
}

func withOffset(raw string, offset int) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("_offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String()
}
