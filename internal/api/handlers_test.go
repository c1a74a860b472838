// internal/api/handlers_test.go
package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"lending-pipeline/internal/common/config"
	"lending-pipeline/internal/common/database"
	"lending-pipeline/internal/common/logger"
	"lending-pipeline/internal/models"
	"lending-pipeline/internal/store"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestRouter(t *testing.T, db *sql.DB, cache Cache) *chi.Mux {
	t.Helper()
	cfg := &config.APIConfig{CacheTTLMS: 60000, DefaultLimit: 100}
	handler := NewHandler(
		cfg,
		store.NewTransitionStore(db),
		store.NewApplicationStore(db),
		store.NewAuditLogStore(db),
		cache,
		logger.NewTestLogger(t),
	)
	r := chi.NewRouter()
	handler.Register(r)
	return r
}

func newTestCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	assert.NoError(t, err)
	return client, mr
}

func applicationRows(userID string, ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"application_id", "user_id", "amount", "status", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, userID, 50000.0, models.StatusSubmitted, "2026-01-15T10:00:00Z", "2026-01-15T10:00:00Z")
	}
	return rows
}

// ==========================
// Submission Tests
// ==========================

func TestHandleSubmit_CreatesAtomicTriple(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO loan_applications`).
		WithArgs(sqlmock.AnyArg(), "user-001", 50000.0, models.StatusSubmitted, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), string(models.StatusSubmitted), models.ActorSubmissionAPI, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), models.EventApplicationSubmitted, sqlmock.AnyArg(), models.OutboxPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	router := newTestRouter(t, db, nil)
	req := httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(`{"userId":"user-001","amount":50000}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp SubmitApplicationResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ApplicationID)
	assert.Equal(t, string(models.StatusSubmitted), resp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSubmit_RejectsMissingUserID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	router := newTestRouter(t, db, nil)
	req := httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(`{"amount":50000}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSubmit_RejectsNonPositiveAmount(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	router := newTestRouter(t, db, nil)
	req := httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(`{"userId":"user-001","amount":-5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmit_InvalidatesUserCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cache, mr := newTestCache(t)
	mr.Set(userApplicationsKey("user-001"), `[{"stale":true}]`)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO loan_applications`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO outbox`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	router := newTestRouter(t, db, cache)
	req := httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(`{"userId":"user-001","amount":50000}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, mr.Exists(userApplicationsKey("user-001")))
}

// ==========================
// Listing and Cache Tests
// ==========================

func TestHandleListByUser_RequiresUserHeader(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	router := newTestRouter(t, db, nil)
	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListByUser_MissPopulatesCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cache, mr := newTestCache(t)

	mock.ExpectQuery(`FROM loan_applications`).
		WithArgs("user-001").
		WillReturnRows(applicationRows("user-001", "app-001", "app-002"))

	router := newTestRouter(t, db, cache)
	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("X-User-Id", "user-001")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var apps []models.Application
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apps))
	assert.Len(t, apps, 2)
	assert.True(t, mr.Exists(userApplicationsKey("user-001")))
}

func TestHandleListByUser_HitSkipsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cache, mr := newTestCache(t)
	mr.Set(userApplicationsKey("user-001"), `[{"applicationId":"app-cached"}]`)

	router := newTestRouter(t, db, cache)
	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("X-User-Id", "user-001")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app-cached")
	// No query expectations were registered, so a DB hit would fail here.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleGet_UnknownApplicationIs404(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM loan_applications`).
		WithArgs("app-missing").
		WillReturnError(sql.ErrNoRows)

	router := newTestRouter(t, db, nil)
	req := httptest.NewRequest(http.MethodGet, "/applications/app-missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ==========================
// Audit Log Endpoint Tests
// ==========================

func TestHandleAuditLogs_ReturnsHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM loan_applications`).
		WithArgs("app-001").
		WillReturnRows(applicationRows("user-001", "app-001"))
	mock.ExpectQuery(`ORDER BY log_timestamp DESC`).
		WithArgs("app-001", 5).
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "log_timestamp", "action", "actor", "details"}).
			AddRow("app-001", "2026-01-15T10:05:00Z", "KYC_PASSED", models.ActorIdentityCheck, "{}").
			AddRow("app-001", "2026-01-15T10:00:00Z", "SUBMITTED", models.ActorSubmissionAPI, "{}"))

	router := newTestRouter(t, db, nil)
	req := httptest.NewRequest(http.MethodGet, "/applications/app-001/logs?order=desc&limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var entries []models.AuditLogEntry
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)
	assert.Equal(t, "KYC_PASSED", entries[0].Action)
}

func TestHandleAuditLogs_UnknownApplicationIs404(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM loan_applications`).
		WithArgs("app-missing").
		WillReturnError(sql.ErrNoRows)

	router := newTestRouter(t, db, nil)
	req := httptest.NewRequest(http.MethodGet, "/applications/app-missing/logs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAuditLogs_RejectsBadLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM loan_applications`).
		WithArgs("app-001").
		WillReturnRows(applicationRows("user-001", "app-001"))

	router := newTestRouter(t, db, nil)
	req := httptest.NewRequest(http.MethodGet, "/applications/app-001/logs?limit=zero", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
