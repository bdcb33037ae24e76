package main

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// gatewayHandler wraps next to enforce the worker and rate limits and
// to track active handlers for the shutdown drain
func gatewayHandler(wg *sync.WaitGroup, sem *semaphore.Weighted, limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wg.Add(1)
		defer wg.Done()

		if limiter != nil && !limiter.Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		if sem != nil {
			slog.Debug("waiting for worker slot")
			if err := sem.Acquire(r.Context(), 1); err != nil {
				slog.Error("failed waiting for worker slot", "err", err)
				return
			}
			defer sem.Release(1)
		}

		next.ServeHTTP(w, r)
	})
}
