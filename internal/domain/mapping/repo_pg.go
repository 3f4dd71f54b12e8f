package mapping

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/namaste/tmbridge/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type mappingRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &mappingRepoPG{pool: pool}
}

func (r *mappingRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const mappingCols = `id, namaste_code, namaste_display, tm2_code, tm2_title, icd_code, icd_title,
	tm2_confidence, icd_confidence, overall_confidence,
	equivalence, confidence_level, mapping_type, traditional_system,
	curator_approved, approved_by, approved_at, created_at, updated_at`

func scanMapping(row pgx.Row) (*Mapping, error) {
	var m Mapping
	err := row.Scan(&m.ID, &m.NamasteCode, &m.NamasteDisplay, &m.TM2Code, &m.TM2Title, &m.ICDCode, &m.ICDTitle,
		&m.TM2Confidence, &m.ICDConfidence, &m.OverallConfidence,
		&m.Equivalence, &m.ConfidenceLevel, &m.MappingType, &m.TraditionalSystem,
		&m.CuratorApproved, &m.ApprovedBy, &m.ApprovedAt, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collect(rows pgx.Rows) ([]*Mapping, error) {
	defer rows.Close()
	var items []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *mappingRepoPG) Upsert(ctx context.Context, m *Mapping) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO mappings (id, namaste_code, namaste_display, tm2_code, tm2_title, icd_code, icd_title,
			tm2_confidence, icd_confidence, overall_confidence,
			equivalence, confidence_level, mapping_type, traditional_system)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (namaste_code, tm2_code, icd_code) DO UPDATE SET
			namaste_display = EXCLUDED.namaste_display,
			tm2_title = EXCLUDED.tm2_title,
			icd_title = EXCLUDED.icd_title,
			tm2_confidence = EXCLUDED.tm2_confidence,
			icd_confidence = EXCLUDED.icd_confidence,
			overall_confidence = EXCLUDED.overall_confidence,
			equivalence = EXCLUDED.equivalence,
			confidence_level = EXCLUDED.confidence_level,
			mapping_type = EXCLUDED.mapping_type,
			traditional_system = EXCLUDED.traditional_system,
			updated_at = NOW()
		RETURNING id, curator_approved, approved_by, approved_at, created_at, updated_at`,
		m.ID, m.NamasteCode, m.NamasteDisplay, m.TM2Code, m.TM2Title, m.ICDCode, m.ICDTitle,
		m.TM2Confidence, m.ICDConfidence, m.OverallConfidence,
		m.Equivalence, m.ConfidenceLevel, m.MappingType, m.TraditionalSystem)
	if err := row.Scan(&m.ID, &m.CuratorApproved, &m.ApprovedBy, &m.ApprovedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("upsert mapping %s: %w", m.cacheKey(), err)
	}
	return nil
}

func (r *mappingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Mapping, error) {
	return scanMapping(r.conn(ctx).QueryRow(ctx, `SELECT `+mappingCols+` FROM mappings WHERE id = $1`, id))
}

// whereClause turns search params into a WHERE clause and its arguments.
// Unknown params are ignored.
func whereClause(params map[string]string) (string, []interface{}, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, p := range SearchParams {
		v, ok := params[p]
		if !ok || v == "" {
			continue
		}
		switch p {
		case ParamNamaste:
			conds = append(conds, "namaste_code = "+arg(v))
		case ParamTM2:
			conds = append(conds, "tm2_code = "+arg(v))
		case ParamICD:
			conds = append(conds, "icd_code = "+arg(v))
		case ParamLevel:
			conds = append(conds, "confidence_level = "+arg(v))
		case ParamApproved:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return "", nil, fmt.Errorf("%w: approved must be true or false", ErrInvalidInput)
			}
			conds = append(conds, "curator_approved = "+arg(b))
		}
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (r *mappingRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Mapping, int, error) {
	where, args, err := whereClause(params)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM mappings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	sql := fmt.Sprintf(`SELECT %s FROM mappings%s ORDER BY overall_confidence DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		mappingCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *mappingRepoPG) ListAll(ctx context.Context) ([]*Mapping, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+mappingCols+` FROM mappings ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *mappingRepoPG) Approve(ctx context.Context, id uuid.UUID, curator string, at time.Time) (*Mapping, error) {
	return scanMapping(r.conn(ctx).QueryRow(ctx, `
		UPDATE mappings SET curator_approved = TRUE, approved_by = $2, approved_at = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+mappingCols, id, curator, at))
}

func (r *mappingRepoPG) FindByNamaste(ctx context.Context, code string) ([]*Mapping, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+mappingCols+` FROM mappings WHERE namaste_code = $1 ORDER BY overall_confidence DESC`, code)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *mappingRepoPG) OverallConfidences(ctx context.Context) ([]float64, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT overall_confidence FROM mappings`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[float64])
}
