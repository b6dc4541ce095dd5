package notify

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"wastedispatch/internal/metrics"
	"wastedispatch/internal/store"
)

// Worker drains the notification queue on a fixed tick. Outbound calls
// go through a rate limiter so a burst of commits cannot hammer
// subscriber endpoints.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Limiter     *rate.Limiter
}

func NewWorker(s store.Store) *Worker {
	max := 10
	if v := os.Getenv("NOTIFY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}
	rps := 20.0
	if v := os.Getenv("NOTIFY_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Stop:        make(chan struct{}),
		MaxAttempts: max,
		Limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueNotifications(ctx, 50)
	if err != nil || len(items) == 0 {
		return
	}
	for _, it := range items {
		if w.Limiter != nil {
			if err := w.Limiter.Wait(ctx); err != nil {
				return
			}
		}
		success := false
		next := time.Now().Add(nextBackoff(it.Attempts))
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Type", it.EventType)
		if it.Secret != "" {
			req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
		}
		start := time.Now()
		resp, err := w.HTTP.Do(req)
		latency := int(time.Since(start).Milliseconds())
		code := 0
		if err == nil && resp != nil {
			code = resp.StatusCode
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			if code >= 200 && code < 300 {
				success = true
			}
		}
		lastErr := ""
		if !success && err != nil {
			lastErr = err.Error()
		}
		outcome := "retry"
		if success {
			outcome = "delivered"
		}
		if !success && it.Attempts+1 >= w.MaxAttempts {
			outcome = "failed"
			metrics.NotificationDeliveries.WithLabelValues(it.EventType, outcome).Inc()
			metrics.NotificationLatency.WithLabelValues(it.EventType, outcome).Observe(float64(latency))
			_ = w.Store.FailNotificationDelivery(ctx, it.ID, lastErr, code, latency)
			continue
		}
		metrics.NotificationDeliveries.WithLabelValues(it.EventType, outcome).Inc()
		metrics.NotificationLatency.WithLabelValues(it.EventType, outcome).Observe(float64(latency))
		_ = w.Store.MarkNotificationDelivery(ctx, it.ID, success, &next, lastErr, code, latency)
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 12 {
		attempts = 12
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
