package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recur/internal/core"
	"recur/internal/recurring"
	"recur/internal/services"
	"recur/internal/storage/memory"
)

const netflixBatch = `[
 {"trans_id":"n1","user_id":"1","name":"NETFLIX 1217","amount":9.99,"date":"2018-01-01"},
 {"trans_id":"n2","user_id":"1","name":"NETFLIX 0118","amount":9.99,"date":"2018-01-31"},
 {"trans_id":"s1","user_id":"1","name":"Starbucks","amount":4.5,"date":"2018-02-14"},
 {"trans_id":"n3","user_id":"1","name":"NETFLIX 0318","amount":9.99,"date":"2018-03-02"}
]`

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	detection := services.NewDetectionService(store, recurring.NewEngine(recurring.DefaultConfig()))
	ingestion := services.NewIngestionService(store, nil, detection)
	srv := NewServer(Options{Addr: ":0", RequestTimeout: 5 * time.Second, RateLimitPerMinute: 100}, ingestion, detection, store)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIngestThenDetect(t *testing.T) {
	srv, store := newTestServer(t)

	rr := do(t, srv.Handler, http.MethodPost, "/transactions", netflixBatch)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"inserted":4,"skipped":0}`, rr.Body.String())

	rr = do(t, srv.Handler, http.MethodGet, "/recurring?user_id=1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `[{"next_amt":9.99,"next_date":"2018-04-01","name":"NETFLIX 0318","user_id":"1","transactions":[9.99,9.99,9.99]}]`, rr.Body.String())

	rr = do(t, srv.Handler, http.MethodGet, "/recurring?user_id=1&view=full", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var full []recurring.Estimate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &full))
	require.Len(t, full, 1)
	assert.Len(t, full[0].Transactions, 3)
	assert.True(t, full[0].Transactions[0].IsRecurring)

	txs, err := store.ListByUser(context.Background(), "1")
	require.NoError(t, err)
	for _, tx := range txs {
		assert.Equal(t, tx.ID != "s1", tx.IsRecurring, "flag of %s", tx.ID)
	}
}

func TestIngestDuplicateIsSkipped(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, srv.Handler, http.MethodPost, "/transactions", netflixBatch)
	rr := do(t, srv.Handler, http.MethodPost, "/transactions", netflixBatch)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"inserted":0,"skipped":4}`, rr.Body.String())
}

func TestIngestValidationErrors(t *testing.T) {
	srv, store := newTestServer(t)

	body := `[
 {"trans_id":"1","user_id":"1","name":"Netflix","amount":9.99,"date":"2018-01-01"},
 {"trans_id":"2","user_id":"1","name":"Netflix","date":"2018-02-01"}
]`
	rr := do(t, srv.Handler, http.MethodPost, "/transactions", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var errs map[string][]core.FieldError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errs))
	require.Contains(t, errs, "transaction2")
	assert.NotContains(t, errs, "transaction1")
	assert.Equal(t, "amount", errs["transaction2"][0].Field)
	assert.Equal(t, core.ErrTypeRequired, errs["transaction2"][0].Type)

	txs, _ := store.ListByUser(context.Background(), "1")
	assert.Empty(t, txs, "nothing is inserted from a rejected batch")
}

func TestIngestBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, body := range []string{`[]`, `{"trans_id":"1"}`, `not json`} {
		rr := do(t, srv.Handler, http.MethodPost, "/transactions", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %q", body)
		assert.JSONEq(t, `{"msg":"Bad Request Error"}`, rr.Body.String())
	}
}

func TestRecurringUnknownUserIsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv.Handler, http.MethodGet, "/recurring?user_id=nobody", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestRecurringRequiresUser(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv.Handler, http.MethodGet, "/recurring", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, srv.Handler, http.MethodGet, "/transactions?user_id=%20", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListTransactions(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv.Handler, http.MethodPost, "/transactions", netflixBatch)

	rr := do(t, srv.Handler, http.MethodGet, "/transactions?user_id=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var txs []core.Transaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &txs))
	require.Len(t, txs, 4)
	assert.Equal(t, "n3", txs[0].ID, "most recent first")

	rr = do(t, srv.Handler, http.MethodGet, "/transactions?user_id=2", "")
	assert.JSONEq(t, `[]`, rr.Body.String())
}

type failingDetector struct{ err error }

func (f failingDetector) Detect(context.Context, string) (recurring.Result, error) {
	return recurring.Result{}, f.err
}

type blockingDetector struct{}

func (blockingDetector) Detect(ctx context.Context, _ string) (recurring.Result, error) {
	<-ctx.Done()
	return recurring.Result{}, ctx.Err()
}

type failingLister struct{}

func (failingLister) ListByUser(context.Context, string) ([]core.Transaction, error) {
	return nil, &services.StorageError{Op: "list", Err: errors.New("disk I/O error")}
}
func (failingLister) Ping(context.Context) error { return errors.New("database is closed") }

func TestServerErrorsAreOpaque(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"storage", &services.StorageError{Op: "mark_recurring", Err: errors.New("constraint failed: secret detail")}},
		{"invariant", recurring.ErrInvariantViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(Options{Addr: ":0"}, nil, failingDetector{err: tt.err}, failingLister{})
			defer srv.Shutdown(context.Background())

			rr := do(t, srv.Handler, http.MethodGet, "/recurring?user_id=1", "")
			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.JSONEq(t, `{"msg":"Internal Server Error"}`, rr.Body.String())
		})
	}
}

func TestRequestTimeoutIsJSON(t *testing.T) {
	srv := NewServer(Options{Addr: ":0", RequestTimeout: 20 * time.Millisecond}, nil, blockingDetector{}, failingLister{})
	defer srv.Shutdown(context.Background())

	rr := do(t, srv.Handler, http.MethodGet, "/recurring?user_id=1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"msg":"Service Unavailable"}`, rr.Body.String())

	// Handlers that answer in time keep their own content type.
	rr = do(t, srv.Handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestHealthAndReadiness(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv.Handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, srv.Handler, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"storage":"ok"`)

	broken := NewServer(Options{Addr: ":0"}, nil, failingDetector{}, failingLister{})
	defer broken.Shutdown(context.Background())
	rr = do(t, broken.Handler, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMiddlewareChain(t *testing.T) {
	store := memory.New()
	detection := services.NewDetectionService(store, recurring.NewEngine(recurring.DefaultConfig()))
	ingestion := services.NewIngestionService(store, nil, detection)
	srv := NewServer(Options{
		Addr:               ":0",
		RateLimitPerMinute: 1,
		AllowedOrigins:     []string{"https://app.example"},
	}, ingestion, detection, store)
	defer srv.Shutdown(context.Background())

	rr := do(t, srv.Handler, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = do(t, srv.Handler, http.MethodPost, "/transactions", netflixBatch)
	assert.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, srv.Handler, http.MethodPost, "/transactions", netflixBatch)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"msg":"Too Many Requests"}`, rr.Body.String())

	rr = do(t, srv.Handler, http.MethodGet, "/metrics", "")
	assert.Contains(t, rr.Body.String(), "transactions_inserted_total 4")
	assert.Contains(t, rr.Body.String(), "rate_limit_rejections_total 1")
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv.Handler, http.MethodDelete, "/transactions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
