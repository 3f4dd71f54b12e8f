package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/namaste/tmbridge/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// execBatch queues one statement per item and returns the rows affected.
func execBatch(ctx context.Context, q queryable, b *pgx.Batch) (int, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	br := q.SendBatch(ctx, b)
	defer br.Close()

	n := 0
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return n, fmt.Errorf("batch item %d: %w", i, err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}

// =========== NAMASTE Repository ===========

type namasteRepoPG struct{ pool *pgxpool.Pool }

func NewNamasteRepoPG(pool *pgxpool.Pool) NamasteRepository { return &namasteRepoPG{pool: pool} }

const namasteCols = `code, display, COALESCE(english_name,''), COALESCE(name,''),
	COALESCE(system,''), COALESCE(synonyms,''), created_at`

func scanNamaste(row pgx.Row) (*NamasteCode, error) {
	var c NamasteCode
	err := row.Scan(&c.Code, &c.Display, &c.EnglishName, &c.Name, &c.System, &c.Synonyms, &c.CreatedAt)
	return &c, err
}

func (r *namasteRepoPG) Search(ctx context.Context, query string, limit int) ([]*NamasteCode, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+namasteCols+`
		 FROM namaste_codes
		 WHERE code ILIKE $1 OR display ILIKE $1 OR english_name ILIKE $1 OR synonyms ILIKE $1
		 ORDER BY display LIMIT $2`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("namaste search: %w", err)
	}
	defer rows.Close()
	var results []*NamasteCode
	for rows.Next() {
		c, err := scanNamaste(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *namasteRepoPG) GetByCode(ctx context.Context, code string) (*NamasteCode, error) {
	c, err := scanNamaste(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+namasteCols+` FROM namaste_codes WHERE code = $1`, code))
	if err != nil {
		return nil, fmt.Errorf("namaste get %s: %w", code, notFound(err))
	}
	return c, nil
}

func (r *namasteRepoPG) Upsert(ctx context.Context, codes []*NamasteCode) (int, error) {
	b := &pgx.Batch{}
	for _, c := range codes {
		b.Queue(`INSERT INTO namaste_codes (code, display, english_name, name, system, synonyms)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO UPDATE SET
				display = EXCLUDED.display, english_name = EXCLUDED.english_name,
				name = EXCLUDED.name, system = EXCLUDED.system, synonyms = EXCLUDED.synonyms`,
			c.Code, c.Display, c.EnglishName, c.Name, c.System, c.Synonyms)
	}
	n, err := execBatch(ctx, connFor(ctx, r.pool), b)
	if err != nil {
		return n, fmt.Errorf("namaste upsert: %w", err)
	}
	return n, nil
}

// =========== TM2 Repository ===========

type tm2RepoPG struct{ pool *pgxpool.Pool }

func NewTM2RepoPG(pool *pgxpool.Pool) TM2Repository { return &tm2RepoPG{pool: pool} }

const tm2Cols = `code, title, COALESCE(class_kind,''), COALESCE(parent,''),
	COALESCE(traditional_system,''), COALESCE(therapeutic_area,''), COALESCE(pattern_type,''),
	COALESCE(synonyms,'{}'), COALESCE(keywords,'{}'), COALESCE(description,''), active`

func scanTM2(row pgx.Row) (*TM2Code, error) {
	var c TM2Code
	err := row.Scan(&c.Code, &c.Title, &c.ClassKind, &c.Parent, &c.TraditionalSystem,
		&c.TherapeuticArea, &c.PatternType, &c.Synonyms, &c.Keywords, &c.Description, &c.Active)
	return &c, err
}

func (r *tm2RepoPG) Search(ctx context.Context, query string, limit int) ([]*TM2Code, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+tm2Cols+`
		 FROM tm2_codes
		 WHERE active AND (code ILIKE $1 OR title ILIKE $1
		       OR EXISTS (SELECT 1 FROM unnest(synonyms) s WHERE s ILIKE $1))
		 ORDER BY code LIMIT $2`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("tm2 search: %w", err)
	}
	defer rows.Close()
	var results []*TM2Code
	for rows.Next() {
		c, err := scanTM2(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *tm2RepoPG) GetByCode(ctx context.Context, code string) (*TM2Code, error) {
	c, err := scanTM2(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tm2Cols+` FROM tm2_codes WHERE code = $1`, code))
	if err != nil {
		return nil, fmt.Errorf("tm2 get %s: %w", code, notFound(err))
	}
	return c, nil
}

func (r *tm2RepoPG) Upsert(ctx context.Context, codes []*TM2Code) (int, error) {
	b := &pgx.Batch{}
	for _, c := range codes {
		b.Queue(`INSERT INTO tm2_codes (code, title, class_kind, parent, traditional_system,
				therapeutic_area, pattern_type, synonyms, keywords, description, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (code) DO UPDATE SET
				title = EXCLUDED.title, class_kind = EXCLUDED.class_kind, parent = EXCLUDED.parent,
				traditional_system = EXCLUDED.traditional_system, therapeutic_area = EXCLUDED.therapeutic_area,
				pattern_type = EXCLUDED.pattern_type, synonyms = EXCLUDED.synonyms,
				keywords = EXCLUDED.keywords, description = EXCLUDED.description, active = EXCLUDED.active,
				updated_at = NOW()`,
			c.Code, c.Title, c.ClassKind, c.Parent, c.TraditionalSystem, c.TherapeuticArea,
			c.PatternType, c.Synonyms, c.Keywords, c.Description, c.Active)
	}
	n, err := execBatch(ctx, connFor(ctx, r.pool), b)
	if err != nil {
		return n, fmt.Errorf("tm2 upsert: %w", err)
	}
	return n, nil
}

func (r *tm2RepoPG) Children(ctx context.Context, parent string) ([]*TM2Code, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+tm2Cols+` FROM tm2_codes WHERE parent = $1 ORDER BY code`, parent)
	if err != nil {
		return nil, fmt.Errorf("tm2 children of %s: %w", parent, err)
	}
	defer rows.Close()
	var results []*TM2Code
	for rows.Next() {
		c, err := scanTM2(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *tm2RepoPG) Stats(ctx context.Context) (*TM2Stats, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT 'system', COALESCE(traditional_system,''), COUNT(*) FROM tm2_codes GROUP BY 2
		 UNION ALL
		 SELECT 'area', COALESCE(therapeutic_area,''), COUNT(*) FROM tm2_codes GROUP BY 2
		 UNION ALL
		 SELECT 'pattern', COALESCE(pattern_type,''), COUNT(*) FROM tm2_codes GROUP BY 2
		 ORDER BY 1, 3 DESC, 2`)
	if err != nil {
		return nil, fmt.Errorf("tm2 stats: %w", err)
	}
	defer rows.Close()

	st := &TM2Stats{BySystem: []CountBucket{}, ByTherapeuticArea: []CountBucket{}, ByPatternType: []CountBucket{}}
	for rows.Next() {
		var dim string
		var b CountBucket
		if err := rows.Scan(&dim, &b.Value, &b.Count); err != nil {
			return nil, err
		}
		switch dim {
		case "system":
			st.BySystem = append(st.BySystem, b)
			st.Total += b.Count
		case "area":
			st.ByTherapeuticArea = append(st.ByTherapeuticArea, b)
		case "pattern":
			st.ByPatternType = append(st.ByPatternType, b)
		}
	}
	return st, rows.Err()
}

// =========== ICD-11 Repository ===========

type icd11RepoPG struct{ pool *pgxpool.Pool }

func NewICD11RepoPG(pool *pgxpool.Pool) ICD11Repository { return &icd11RepoPG{pool: pool} }

const icd11Cols = `code, title, COALESCE(class_kind,''), COALESCE(parent,''),
	COALESCE(synonyms,'{}'), COALESCE(description,''), COALESCE(module,'MMS')`

func scanICD11(row pgx.Row) (*ICD11Code, error) {
	var c ICD11Code
	err := row.Scan(&c.Code, &c.Title, &c.ClassKind, &c.Parent, &c.Synonyms, &c.Description, &c.Module)
	return &c, err
}

func (r *icd11RepoPG) Search(ctx context.Context, query string, limit int) ([]*ICD11Code, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+icd11Cols+`
		 FROM icd11_codes
		 WHERE code ILIKE $1 OR title ILIKE $1
		       OR EXISTS (SELECT 1 FROM unnest(synonyms) s WHERE s ILIKE $1)
		 ORDER BY code LIMIT $2`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("icd11 search: %w", err)
	}
	defer rows.Close()
	var results []*ICD11Code
	for rows.Next() {
		c, err := scanICD11(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *icd11RepoPG) GetByCode(ctx context.Context, code string) (*ICD11Code, error) {
	c, err := scanICD11(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+icd11Cols+` FROM icd11_codes WHERE code = $1`, code))
	if err != nil {
		return nil, fmt.Errorf("icd11 get %s: %w", code, notFound(err))
	}
	return c, nil
}

func (r *icd11RepoPG) Upsert(ctx context.Context, codes []*ICD11Code) (int, error) {
	b := &pgx.Batch{}
	for _, c := range codes {
		b.Queue(`INSERT INTO icd11_codes (code, title, class_kind, parent, synonyms, description, module)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code) DO UPDATE SET
				title = EXCLUDED.title, class_kind = EXCLUDED.class_kind, parent = EXCLUDED.parent,
				synonyms = EXCLUDED.synonyms, description = EXCLUDED.description, module = EXCLUDED.module,
				updated_at = NOW()`,
			c.Code, c.Title, c.ClassKind, c.Parent, c.Synonyms, c.Description, c.Module)
	}
	n, err := execBatch(ctx, connFor(ctx, r.pool), b)
	if err != nil {
		return n, fmt.Errorf("icd11 upsert: %w", err)
	}
	return n, nil
}
