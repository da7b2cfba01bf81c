// Package hipaa records who accessed which patient record.
package hipaa

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclinical/ccda-analyst/internal/platform/db"
)

// Access actions, following the audit event action codes.
const (
	ActionCreate  = "C"
	ActionRead    = "R"
	ActionUpdate  = "U"
	ActionDelete  = "D"
	ActionExecute = "E"
)

// AccessEntry is one row of the phi_access_log table.
type AccessEntry struct {
	ID         uuid.UUID `json:"id"`
	RecordID   uuid.UUID `json:"record_id"`
	UserID     string    `json:"user_id"`
	Roles      []string  `json:"roles"`
	Action     string    `json:"action"`
	Route      string    `json:"route"`
	Status     int       `json:"status"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	RequestID  string    `json:"request_id"`
	AccessedAt time.Time `json:"accessed_at"`
}

// Recorder persists access entries.
type Recorder interface {
	Record(ctx context.Context, e *AccessEntry) error
}

// ActionFor maps a request method and route to an access action. Asking
// the assistant about a record counts as execute.
func ActionFor(method, route string) string {
	switch {
	case method == http.MethodPost && strings.HasSuffix(route, "/ask"):
		return ActionExecute
	case method == http.MethodPost:
		return ActionCreate
	case method == http.MethodPut, method == http.MethodPatch:
		return ActionUpdate
	case method == http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}

// AccessLogger writes access entries to Postgres.
type AccessLogger struct {
	pool *pgxpool.Pool
}

func NewAccessLogger(pool *pgxpool.Pool) *AccessLogger {
	return &AccessLogger{pool: pool}
}

// Record inserts e, honoring a transaction carried by ctx.
func (a *AccessLogger) Record(ctx context.Context, e *AccessEntry) error {
	if e.AccessedAt.IsZero() {
		e.AccessedAt = time.Now().UTC()
	}
	if e.Roles == nil {
		e.Roles = []string{}
	}

	const query = `
		INSERT INTO phi_access_log (
			record_id, user_id, roles, action, route, status,
			ip_address, user_agent, request_id, accessed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`

	err := db.Conn(ctx, a.pool).QueryRow(ctx, query,
		e.RecordID, e.UserID, e.Roles, e.Action, e.Route, e.Status,
		e.IPAddress, e.UserAgent, e.RequestID, e.AccessedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("phi access log: %w", err)
	}
	return nil
}

// ListByRecord returns the access history of one record, newest first.
func (a *AccessLogger) ListByRecord(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]*AccessEntry, int, error) {
	conn := db.Conn(ctx, a.pool)

	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM phi_access_log WHERE record_id = $1`, recordID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `
		SELECT id, record_id, user_id, roles, action, route, status,
			ip_address, user_agent, request_id, accessed_at
		FROM phi_access_log WHERE record_id = $1
		ORDER BY accessed_at DESC, id LIMIT $2 OFFSET $3`, recordID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*AccessEntry
	for rows.Next() {
		e := &AccessEntry{}
		if err := rows.Scan(&e.ID, &e.RecordID, &e.UserID, &e.Roles, &e.Action, &e.Route, &e.Status,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.AccessedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
