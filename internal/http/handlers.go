package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"recur/internal/core"
	"recur/internal/log"
	"recur/internal/recurring"
)

type appMetrics struct {
	uptime       time.Time
	ingested     int64
	skipped      int64
	detections   int64
	rejected     int64
	serverErrors int64
}

func newAppMetrics() *appMetrics {
	return &appMetrics{uptime: time.Now()}
}

// ingestResponse is the body of an accepted batch.
type ingestResponse struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// estimateAmounts is an Estimate whose members are rendered as amounts.
type estimateAmounts struct {
	NextAmount   float64   `json:"next_amt"`
	NextDate     core.Date `json:"next_date"`
	Name         string    `json:"name"`
	UserID       string    `json:"user_id"`
	Transactions []float64 `json:"transactions"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		s.writeError(r.Context(), w, log.OpIngest, err)
		return
	}

	res, err := s.ingestion.IngestJSON(r.Context(), body)
	if err != nil {
		s.writeError(r.Context(), w, log.OpIngest, err)
		return
	}

	atomic.AddInt64(&s.metrics.ingested, int64(res.Inserted))
	atomic.AddInt64(&s.metrics.skipped, int64(res.Skipped))
	writeJSON(w, http.StatusCreated, ingestResponse{Inserted: res.Inserted, Skipped: res.Skipped})
}

func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := ParseUserID(query)
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.detection.Detect(r.Context(), userID)
	if err != nil {
		s.writeError(r.Context(), w, log.OpDetect, err)
		return
	}
	atomic.AddInt64(&s.metrics.detections, 1)

	if ParseView(query) == ViewFull {
		writeJSON(w, http.StatusOK, nonNil(res.Estimates))
		return
	}
	writeJSON(w, http.StatusOK, amountsView(res.Estimates))
}

func nonNil(estimates []recurring.Estimate) []recurring.Estimate {
	if estimates == nil {
		return []recurring.Estimate{}
	}
	return estimates
}

func amountsView(estimates []recurring.Estimate) []estimateAmounts {
	out := make([]estimateAmounts, 0, len(estimates))
	for _, e := range estimates {
		amounts := make([]float64, len(e.Transactions))
		for i, tx := range e.Transactions {
			amounts[i] = tx.Amount
		}
		out = append(out, estimateAmounts{
			NextAmount:   e.NextAmount,
			NextDate:     e.NextDate,
			Name:         e.Name,
			UserID:       e.UserID,
			Transactions: amounts,
		})
	}
	return out
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := ParseUserID(r.URL.Query())
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	txs, err := s.lister.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(r.Context(), w, log.OpList, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clientIP.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeMessage(w, http.StatusTooManyRequests, msgTooManyRequests)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.uptime).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.lister.Ping(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.GetMetrics().ClientCount,
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	traceMetrics := s.traceMiddleware.GetMetrics()
	limitMetrics := s.rateLimiter.GetMetrics()

	metric := func(name, help, typ string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, typ, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("transactions_inserted_total", "Transactions stored by ingestion", "counter", atomic.LoadInt64(&s.metrics.ingested))
	metric("transactions_skipped_total", "Transactions skipped as already stored", "counter", atomic.LoadInt64(&s.metrics.skipped))
	metric("detections_total", "Successful detection requests", "counter", atomic.LoadInt64(&s.metrics.detections))
	metric("requests_rejected_total", "Requests rejected as invalid", "counter", atomic.LoadInt64(&s.metrics.rejected))
	metric("requests_failed_total", "Requests that failed server-side", "counter", atomic.LoadInt64(&s.metrics.serverErrors))
	metric("rate_limit_rejections_total", "Requests rejected by the rate limiter", "counter", limitMetrics.Rejected)
	metric("uptime_seconds", "Process uptime", "gauge", int64(time.Since(s.metrics.uptime).Seconds()))
}
