package mapping

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a mapping id does not exist.
var ErrNotFound = errors.New("mapping not found")

// Search parameters accepted by Repository.Search.
const (
	ParamNamaste  = "namaste"
	ParamTM2      = "tm2"
	ParamICD      = "icd"
	ParamLevel    = "level"
	ParamApproved = "approved"
)

var SearchParams = []string{ParamNamaste, ParamTM2, ParamICD, ParamLevel, ParamApproved}

type Repository interface {
	// Upsert inserts or rescores the mapping for its (namaste, tm2, icd)
	// triple and fills in ID and timestamps. Approval is preserved.
	Upsert(ctx context.Context, m *Mapping) error
	GetByID(ctx context.Context, id uuid.UUID) (*Mapping, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Mapping, int, error)
	// ListAll returns every mapping in creation order.
	ListAll(ctx context.Context) ([]*Mapping, error)
	Approve(ctx context.Context, id uuid.UUID, curator string, at time.Time) (*Mapping, error)
	// FindByNamaste returns the mappings of one NAMASTE code, best first.
	FindByNamaste(ctx context.Context, code string) ([]*Mapping, error)
	OverallConfidences(ctx context.Context) ([]float64, error)
}
