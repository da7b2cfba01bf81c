package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclinical/ccda-analyst/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const listCols = `id, patient_id, full_name, dob, gender, filename, created_at`

var copyCols = []string{"id", "patient_id", "full_name", "dob", "gender", "filename", "xml_content", "created_at"}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	stamp(rec, time.Now().UTC())
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_record (id, patient_id, full_name, dob, gender, filename, xml_content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.PatientID, rec.FullName, rec.DOB, rec.Gender, rec.Filename, rec.XMLContent, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// CreateBatch bulk-loads recs with COPY, preserving slice order.
func (r *repoPG) CreateBatch(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, rec := range recs {
		stamp(rec, now)
	}

	n, err := r.conn(ctx).CopyFrom(ctx, pgx.Identifier{"patient_record"}, copyCols,
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			rec := recs[i]
			return []any{rec.ID, rec.PatientID, rec.FullName, rec.DOB, rec.Gender, rec.Filename, rec.XMLContent, rec.CreatedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy records: %w", err)
	}
	if int(n) != len(recs) {
		return fmt.Errorf("copy records: wrote %d of %d rows", n, len(recs))
	}
	return nil
}

func stamp(rec *Record, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, full_name, dob, gender, filename, xml_content, created_at
		FROM patient_record WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.PatientID, &rec.FullName, &rec.DOB, &rec.Gender, &rec.Filename, &rec.XMLContent, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_record`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+listCols+` FROM patient_record
		ORDER BY full_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	recs, err := scanList(rows)
	return recs, total, err
}

func (r *repoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Record, int, error) {
	pattern := "%" + escapeLike(query) + "%"
	const where = ` WHERE full_name ILIKE $1 OR patient_id ILIKE $1`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_record`+where, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+listCols+` FROM patient_record`+where+`
		ORDER BY full_name, id LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search records: %w", err)
	}
	recs, err := scanList(rows)
	return recs, total, err
}

func scanList(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()
	var recs []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.PatientID, &rec.FullName, &rec.DOB, &rec.Gender, &rec.Filename, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *repoPG) Truncate(ctx context.Context) error {
	if _, err := r.conn(ctx).Exec(ctx, `TRUNCATE patient_record`); err != nil {
		return fmt.Errorf("truncate records: %w", err)
	}
	return nil
}
