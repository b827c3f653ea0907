package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when an incident id has no stored record.
var ErrNotFound = errors.New("incidents: incident not found")

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores incidents in the relational database.
type Repository struct {
	db db
}

// NewRepository initializes a repo backed by pgx.
func NewRepository(db db) *Repository {
	if db == nil {
		panic("incidents: db required")
	}
	return &Repository{db: db}
}

const incidentColumns = `id, created_at, updated_at, triggered_at, status, severity,
	rule_name, title, description, alert_id, alert_query, tags, trace_ids,
	remediation_actions, recommended_actions, requires_manual_review,
	resolved_at, resolved_by`

// Create inserts a new incident and returns it with generated fields set.
func (r *Repository) Create(ctx context.Context, inc Incident) (Incident, error) {
	if !ValidSeverity(inc.Severity) {
		return Incident{}, fmt.Errorf("incidents: invalid severity %q", inc.Severity)
	}
	if inc.Status == "" {
		inc.Status = StatusOpen
	}
	if !ValidStatus(inc.Status) {
		return Incident{}, fmt.Errorf("incidents: invalid status %q", inc.Status)
	}
	if strings.TrimSpace(inc.Title) == "" {
		return Incident{}, errors.New("incidents: title required")
	}

	inc.ID = uuid.NewString()
	now := time.Now().UTC()
	inc.CreatedAt = now
	inc.UpdatedAt = now
	if inc.TriggeredAt.IsZero() {
		inc.TriggeredAt = now
	}
	if inc.RemediationActions == nil {
		inc.RemediationActions = []RemediationAction{}
	}

	actions, err := json.Marshal(inc.RemediationActions)
	if err != nil {
		return Incident{}, fmt.Errorf("incidents: encode remediation actions: %w", err)
	}

	query := `
		INSERT INTO incidents (id, created_at, updated_at, triggered_at, status, severity,
			rule_name, title, description, alert_id, alert_query, tags, trace_ids,
			remediation_actions, recommended_actions, requires_manual_review)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if _, err := r.db.Exec(ctx, query,
		inc.ID,
		inc.CreatedAt,
		inc.UpdatedAt,
		inc.TriggeredAt,
		string(inc.Status),
		string(inc.Severity),
		inc.RuleName,
		inc.Title,
		inc.Description,
		inc.AlertID,
		inc.AlertQuery,
		inc.Tags,
		inc.TraceIDs,
		actions,
		inc.RecommendedActions,
		inc.RequiresManualReview,
	); err != nil {
		return Incident{}, fmt.Errorf("incidents: insert failed: %w", err)
	}
	return inc, nil
}

// Get fetches one incident by id.
func (r *Repository) Get(ctx context.Context, id string) (Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Incident{}, ErrNotFound
		}
		return Incident{}, fmt.Errorf("incidents: select failed: %w", err)
	}
	return inc, nil
}

// List returns incidents newest-first, optionally filtered by status and
// severity.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Incident, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("incidents: list failed: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("incidents: scan failed: %w", err)
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("incidents: list failed: %w", err)
	}
	return out, nil
}

// UpdateStatus transitions an incident's lifecycle status. Resolving stamps
// resolved_at/resolved_by.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, resolvedBy string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("incidents: invalid status %q", status)
	}

	var (
		query string
		args  []any
	)
	if status == StatusResolved {
		query = `UPDATE incidents SET status = $1, updated_at = $2, resolved_at = $2, resolved_by = $3 WHERE id = $4`
		args = []any{string(status), time.Now().UTC(), resolvedBy, id}
	} else {
		query = `UPDATE incidents SET status = $1, updated_at = $2 WHERE id = $3`
		args = []any{string(status), time.Now().UTC(), id}
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("incidents: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendRemediation records one remediation action on an existing incident.
func (r *Repository) AppendRemediation(ctx context.Context, id string, action RemediationAction) error {
	encoded, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("incidents: encode remediation action: %w", err)
	}

	query := `
		UPDATE incidents
		SET remediation_actions = remediation_actions || $1::jsonb, updated_at = $2
		WHERE id = $3
	`
	tag, err := r.db.Exec(ctx, query, encoded, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("incidents: append remediation failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRecommendations stores recommended follow-up actions and the manual
// review flag.
func (r *Repository) SetRecommendations(ctx context.Context, id string, actions []string, manualReview bool) error {
	query := `
		UPDATE incidents
		SET recommended_actions = $1, requires_manual_review = $2, updated_at = $3
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, actions, manualReview, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("incidents: set recommendations failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTraceContext attaches recent trace ids to an incident.
func (r *Repository) SetTraceContext(ctx context.Context, id string, traceIDs []string) error {
	query := `UPDATE incidents SET trace_ids = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, traceIDs, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("incidents: set trace context failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (Incident, error) {
	var (
		inc     Incident
		actions []byte
	)
	if err := row.Scan(
		&inc.ID,
		&inc.CreatedAt,
		&inc.UpdatedAt,
		&inc.TriggeredAt,
		&inc.Status,
		&inc.Severity,
		&inc.RuleName,
		&inc.Title,
		&inc.Description,
		&inc.AlertID,
		&inc.AlertQuery,
		&inc.Tags,
		&inc.TraceIDs,
		&actions,
		&inc.RecommendedActions,
		&inc.RequiresManualReview,
		&inc.ResolvedAt,
		&inc.ResolvedBy,
	); err != nil {
		return Incident{}, err
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &inc.RemediationActions); err != nil {
			return Incident{}, fmt.Errorf("decode remediation actions: %w", err)
		}
	}
	if inc.RemediationActions == nil {
		inc.RemediationActions = []RemediationAction{}
	}
	return inc, nil
}
