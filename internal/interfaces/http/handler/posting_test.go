package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appposting "github.com/hera/autojournal/internal/application/posting"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/infrastructure/auth"
	"github.com/hera/autojournal/internal/interfaces/http/dto"
	"github.com/hera/autojournal/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockPostingService struct {
	mock.Mock
}

func (m *mockPostingService) Ingest(ctx context.Context, req *appposting.PostTransactionRequest, auth appposting.AuthContext) (*appposting.IngestResult, error) {
	args := m.Called(ctx, req, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appposting.IngestResult), args.Error(1)
}

func (m *mockPostingService) GetJournal(ctx context.Context, orgID, id uuid.UUID) (*appposting.JournalDTO, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appposting.JournalDTO), args.Error(1)
}

func (m *mockPostingService) ListAudit(ctx context.Context, orgID uuid.UUID, filter posting.AuditFilter) ([]appposting.AuditRecordDTO, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]appposting.AuditRecordDTO), args.Error(1)
}

func (m *mockPostingService) FlushStaleBatches(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Int(0), args.Error(1)
}

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Error    *dto.ErrorInfo  `json:"error"`
	Metadata dto.Metadata    `json:"metadata"`
}

type testServer struct {
	engine  *gin.Engine
	service *mockPostingService
	auth    appposting.AuthContext
}

// newTestServer mounts the handler behind a stub that injects the
// authenticated caller the way JWTAuth does
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		service: new(mockPostingService),
		auth:    appposting.AuthContext{OrganizationID: uuid.New(), UserID: uuid.New(), Username: "cashier"},
	}
	ts.engine = gin.New()
	ts.engine.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set(middleware.OrganizationIDKey, ts.auth.OrganizationID.String())
		c.Set(middleware.ClaimsKey, &auth.Claims{
			OrganizationID: ts.auth.OrganizationID.String(),
			UserID:         ts.auth.UserID.String(),
			Username:       ts.auth.Username,
		})
		c.Next()
	})
	NewPostingHandler(ts.service, 6*time.Hour).RegisterRoutes(ts.engine.Group("/api/v1"))
	t.Cleanup(func() { ts.service.AssertExpectations(t) })
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	assert.NotEmpty(t, env.Metadata.RequestID)
	return w, env
}

func saleBody(orgID uuid.UUID) string {
	return fmt.Sprintf(`{
		"organization_id": %q,
		"transaction_type": "sale",
		"smart_code": "HERA.REST.FINANCE.TXN.SALE.V1",
		"transaction_date": "2024-12-01",
		"total_amount": 1250.50,
		"transaction_currency_code": "AED",
		"business_context": {"channel": "MCP"}
	}`, orgID)
}

func TestPostTransaction_Posted(t *testing.T) {
	ts := newTestServer(t)
	journalID := uuid.New()
	result := &appposting.IngestResult{
		TransactionID:     uuid.New(),
		JournalEntryID:    &journalID,
		PostingPeriod:     "2024-12",
		ProcessingResult:  string(posting.ResultPosted),
		PostedImmediately: true,
		GLLines: []appposting.GLLineDTO{
			{LineNumber: 1, AccountCode: "1200", DebitAmount: decimal.RequireFromString("1250.50"), Currency: "AED"},
			{LineNumber: 2, AccountCode: "4000", CreditAmount: decimal.RequireFromString("1250.50"), Currency: "AED"},
		},
	}
	ts.service.On("Ingest", mock.Anything, mock.MatchedBy(func(req *appposting.PostTransactionRequest) bool {
		return req.TotalAmount != nil && req.TotalAmount.Equal(decimal.RequireFromString("1250.50")) &&
			req.BusinessContext.Channel == "MCP"
	}), ts.auth).Return(result, nil)

	w, env := ts.do(t, http.MethodPost, "/api/v1/transactions/post", saleBody(ts.auth.OrganizationID))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "HERA.REST.FINANCE.TXN.SALE.V1", env.Metadata.SmartCode)
	assert.Equal(t, ts.auth.OrganizationID.String(), env.Metadata.OrganizationID)

	var got appposting.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, journalID, *got.JournalEntryID)
	assert.Len(t, got.GLLines, 2)
}

func TestPostTransaction_BatchedReturns200(t *testing.T) {
	ts := newTestServer(t)
	groupID := uuid.New()
	ts.service.On("Ingest", mock.Anything, mock.Anything, ts.auth).Return(&appposting.IngestResult{
		ProcessingResult: string(posting.ResultBatched),
		Batched:          true,
		BatchGroupID:     &groupID,
		GLLines:          []appposting.GLLineDTO{},
	}, nil)

	w, env := ts.do(t, http.MethodPost, "/api/v1/transactions/post", saleBody(ts.auth.OrganizationID))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"journal_entry_id":null`)
}

func TestPostTransaction_InvalidJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "truncated", body: `{"organization_id": `},
		{name: "wrong type", body: `{"organization_id": 42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			w, env := ts.do(t, http.MethodPost, "/api/v1/transactions/post", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, dto.ErrCodeInvalidJSON, env.Error.Code)
			assert.Equal(t, "Request body is not valid JSON", env.Error.Message)
			assert.NotContains(t, w.Body.String(), "Go struct")
			assert.NotContains(t, w.Body.String(), "PostTransactionRequest")
			ts.service.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestPostTransaction_ErrorMapping(t *testing.T) {
	unbalanced := &appposting.PostingError{
		Code:    posting.ErrUnbalancedJournal.Code,
		Message: "Journal debits and credits do not balance",
		Err: &posting.BalanceError{Lines: []posting.JournalLine{
			{LineNumber: 1, AccountCode: "1000", DebitAmount: decimal.NewFromInt(100)},
			{LineNumber: 2, AccountCode: "4000", CreditAmount: decimal.NewFromInt(90)},
		}},
	}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
		check  func(t *testing.T, env envelope)
	}{
		{
			name: "validation",
			err: &appposting.ValidationError{Errors: []appposting.FieldError{
				{Field: "total_amount", Message: "is required"},
			}},
			status: http.StatusBadRequest,
			code:   dto.ErrCodeValidationFailed,
			check: func(t *testing.T, env envelope) {
				require.Len(t, env.Error.ValidationErrors, 1)
				assert.Equal(t, "total_amount", env.Error.ValidationErrors[0].Field)
			},
		},
		{name: "access denied", err: appposting.ErrAccessDenied, status: http.StatusForbidden, code: dto.ErrCodeAccessDenied},
		{name: "duplicate", err: appposting.ErrDuplicateRequest, status: http.StatusConflict, code: dto.ErrCodeDuplicateRequest},
		{
			name:   "unbalanced",
			err:    unbalanced,
			status: http.StatusUnprocessableEntity,
			code:   dto.ErrCodeProcessingFailed,
			check: func(t *testing.T, env envelope) {
				require.Len(t, env.Error.PostingErrors, 1)
				assert.Equal(t, "UNBALANCED_JOURNAL", env.Error.PostingErrors[0].Code)
				details, ok := env.Error.Details.(map[string]any)
				require.True(t, ok)
				assert.Len(t, details["attempted_lines"], 2)
			},
		},
		{
			name:   "store unavailable",
			err:    &appposting.PostingError{Code: appposting.CodePostingFailed, Message: "Failed to persist journal entry", Err: errors.New("conn refused")},
			status: http.StatusServiceUnavailable,
			code:   dto.ErrCodePostingFailed,
		},
		{
			name:   "store timeout",
			err:    &appposting.PostingError{Code: appposting.CodePostingTimeout, Message: "Timed out", Err: context.DeadlineExceeded},
			status: http.StatusGatewayTimeout,
			code:   dto.ErrCodePostingTimeout,
		},
		{
			name:   "unmapped domain code",
			err:    shared.NewDomainError("CURRENCY_MISMATCH", "Currency does not match the batch"),
			status: http.StatusUnprocessableEntity,
			code:   dto.ErrCodeProcessingFailed,
		},
		{
			name:   "unexpected",
			err:    errors.New("pq: password authentication failed"),
			status: http.StatusInternalServerError,
			code:   dto.ErrCodeInternal,
			check: func(t *testing.T, env envelope) {
				assert.NotContains(t, env.Error.Message, "password")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.service.On("Ingest", mock.Anything, mock.Anything, ts.auth).Return(nil, tt.err)

			w, env := ts.do(t, http.MethodPost, "/api/v1/transactions/post", saleBody(ts.auth.OrganizationID))
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			if tt.check != nil {
				tt.check(t, env)
			}
		})
	}
}

func TestGetJournal(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	ts.service.On("GetJournal", mock.Anything, ts.auth.OrganizationID, id).
		Return(&appposting.JournalDTO{ID: id, SmartCode: "HERA.FIN.GL.AUTO.SALE.V1", Status: "posted"}, nil)

	w, env := ts.do(t, http.MethodGet, "/api/v1/journals/"+id.String(), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HERA.FIN.GL.AUTO.SALE.V1", env.Metadata.SmartCode)

	missing := uuid.New()
	ts.service.On("GetJournal", mock.Anything, ts.auth.OrganizationID, missing).Return(nil, shared.ErrNotFound)
	w, env = ts.do(t, http.MethodGet, "/api/v1/journals/"+missing.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, env.Error.Code)

	w, env = ts.do(t, http.MethodGet, "/api/v1/journals/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidInput, env.Error.Code)
}

func TestListAudit(t *testing.T) {
	ts := newTestServer(t)
	txID := uuid.New()
	ts.service.On("ListAudit", mock.Anything, ts.auth.OrganizationID, mock.MatchedBy(func(f posting.AuditFilter) bool {
		return f.SourceTransactionID != nil && *f.SourceTransactionID == txID &&
			f.Result != nil && *f.Result == posting.ResultNotRelevant && f.Limit == 20
	})).Return([]appposting.AuditRecordDTO{{ID: uuid.New(), ProcessingResult: "not_relevant"}}, nil)

	w, env := ts.do(t, http.MethodGet,
		"/api/v1/audit?source_transaction_id="+txID.String()+"&result=not_relevant&limit=20", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "not_relevant")

	w, env = ts.do(t, http.MethodGet, "/api/v1/audit?limit=9000", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidInput, env.Error.Code)
}

func TestFlushStale(t *testing.T) {
	ts := newTestServer(t)
	ts.service.On("FlushStaleBatches", mock.Anything, 6*time.Hour, 0).Return(2, nil).Once()
	ts.service.On("FlushStaleBatches", mock.Anything, 30*time.Minute, 10).Return(0, nil).Once()

	w, env := ts.do(t, http.MethodPost, "/api/v1/batches/flush-stale", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var res dto.FlushStaleResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Flushed)
	assert.Equal(t, "6h0m0s", res.OlderThan)

	w, _ = ts.do(t, http.MethodPost, "/api/v1/batches/flush-stale?older_than=30m&limit=10", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = ts.do(t, http.MethodPost, "/api/v1/batches/flush-stale?older_than=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(env.Error.Message, "older_than"))
}

func TestPostingHandler_RequiresAuth(t *testing.T) {
	engine := gin.New()
	engine.Use(middleware.RequestID())
	NewPostingHandler(new(mockPostingService), 0).RegisterRoutes(engine.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/post", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
