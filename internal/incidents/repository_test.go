package incidents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var incidentCols = []string{
	"id", "created_at", "updated_at", "triggered_at", "status", "severity",
	"rule_name", "title", "description", "alert_id", "alert_query", "tags",
	"trace_ids", "remediation_actions", "recommended_actions",
	"requires_manual_review", "resolved_at", "resolved_by",
}

func incidentRow(inc Incident) *pgxmock.Rows {
	actions, _ := json.Marshal(inc.RemediationActions)
	return pgxmock.NewRows(incidentCols).AddRow(
		inc.ID, inc.CreatedAt, inc.UpdatedAt, inc.TriggeredAt,
		inc.Status, inc.Severity, inc.RuleName, inc.Title, inc.Description,
		inc.AlertID, inc.AlertQuery, inc.Tags, inc.TraceIDs, actions,
		inc.RecommendedActions, inc.RequiresManualReview,
		inc.ResolvedAt, inc.ResolvedBy,
	)
}

func sampleIncident() Incident {
	now := time.Now().UTC().Truncate(time.Second)
	return Incident{
		ID:                 "11111111-2222-3333-4444-555555555555",
		CreatedAt:          now,
		UpdatedAt:          now,
		TriggeredAt:        now,
		Status:             StatusOpen,
		Severity:           SeverityHigh,
		RuleName:           "security_threat",
		Title:              "Security Threat Detected",
		Description:        "prompt injection burst",
		AlertID:            "alert_20260829120000_0001",
		TraceIDs:           []string{"trace-1", "trace-2"},
		RemediationActions: []RemediationAction{},
	}
}

func TestRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO incidents").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"open", "high", "security_threat", "Security Threat Detected",
			"prompt injection burst", "alert-1", "", "",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), false,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewRepository(mock)
	inc, err := repo.Create(context.Background(), Incident{
		Severity:    SeverityHigh,
		RuleName:    "security_threat",
		Title:       "Security Threat Detected",
		Description: "prompt injection burst",
		AlertID:     "alert-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, StatusOpen, inc.Status)
	assert.False(t, inc.CreatedAt.IsZero())
	assert.NotNil(t, inc.RemediationActions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateRejectsInvalidInput(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)

	_, err = repo.Create(context.Background(), Incident{Severity: "urgent", Title: "x"})
	assert.ErrorContains(t, err, "invalid severity")

	_, err = repo.Create(context.Background(), Incident{Severity: SeverityLow, Title: "  "})
	assert.ErrorContains(t, err, "title required")
}

func TestRepositoryGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := sampleIncident()
	mock.ExpectQuery("SELECT .+ FROM incidents WHERE id =").
		WithArgs(want.ID).
		WillReturnRows(incidentRow(want))

	repo := NewRepository(mock)
	got, err := repo.Get(context.Background(), want.ID)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Severity, got.Severity)
	assert.Equal(t, want.TraceIDs, got.TraceIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM incidents WHERE id =").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(incidentCols))

	repo := NewRepository(mock)
	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryListFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := sampleIncident()
	mock.ExpectQuery(`SELECT .+ FROM incidents WHERE status = \$1 AND severity = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("open", "high", 20).
		WillReturnRows(incidentRow(want))

	repo := NewRepository(mock)
	list, err := repo.List(context.Background(), Filter{Status: StatusOpen, Severity: SeverityHigh})
	require.NoError(t, err)

	require.Len(t, list, 1)
	assert.Equal(t, want.ID, list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE incidents SET status =").
		WithArgs("resolved", pgxmock.AnyArg(), "oncall", "inc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepository(mock)
	require.NoError(t, repo.UpdateStatus(context.Background(), "inc-1", StatusResolved, "oncall"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateStatusNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE incidents SET status =").
		WithArgs("investigating", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRepository(mock)
	err = repo.UpdateStatus(context.Background(), "missing", StatusInvestigating, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryAppendRemediation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE incidents").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "inc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepository(mock)
	err = repo.AppendRemediation(context.Background(), "inc-1", RemediationAction{
		ActionType: "rate_limit",
		Target:     "user-42",
		Parameters: map[string]any{"limit": 10, "window_seconds": 60},
		ExecutedAt: time.Now().UTC(),
		Result:     "Rate limit applied to user user-42: 10 req/min",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
