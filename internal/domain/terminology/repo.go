package terminology

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetByCode when the code does not exist.
var ErrNotFound = errors.New("terminology: code not found")

// NamasteRepository provides access to NAMASTE codes.
type NamasteRepository interface {
	Search(ctx context.Context, query string, limit int) ([]*NamasteCode, error)
	GetByCode(ctx context.Context, code string) (*NamasteCode, error)
	Upsert(ctx context.Context, codes []*NamasteCode) (int, error)
}

// TM2Repository provides access to TM2 codes.
type TM2Repository interface {
	Search(ctx context.Context, query string, limit int) ([]*TM2Code, error)
	GetByCode(ctx context.Context, code string) (*TM2Code, error)
	Upsert(ctx context.Context, codes []*TM2Code) (int, error)
	// Children returns the codes whose parent is the given code, ordered by code.
	Children(ctx context.Context, parent string) ([]*TM2Code, error)
	Stats(ctx context.Context) (*TM2Stats, error)
}

// ICD11Repository provides access to ICD-11 codes.
type ICD11Repository interface {
	Search(ctx context.Context, query string, limit int) ([]*ICD11Code, error)
	GetByCode(ctx context.Context, code string) (*ICD11Code, error)
	Upsert(ctx context.Context, codes []*ICD11Code) (int, error)
}
