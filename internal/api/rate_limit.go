package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelforge/internal/ratelimit"
)

type RateLimiter interface {
	AllowN(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

// withRateLimit charges one token for mutating job routes. Job creation is
// charged by its handler, which knows the pipeline cost.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}
		if s.allow(w, r, 1) {
			next.ServeHTTP(w, r)
		}
	})
}

// allow reports whether the request may proceed and writes the 429 response
// when it may not. Limiter outages fail open.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, cost int) bool {
	if s.rateLimiter == nil || cost <= 0 {
		return true
	}

	subject := s.userID(r)
	if subject == "" {
		subject = "anonymous"
	}
	route := routeLabel(r.URL.Path)
	subject = subject + ":" + route

	decision, err := s.rateLimiter.AllowN(r.Context(), subject, cost)
	if err != nil {
		s.logger.Printf("rate limiter check failed for subject=%s cost=%d err=%v", subject, cost, err)
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	w.Header().Set("X-RateLimit-Cost", strconv.Itoa(cost))
	if decision.Allowed {
		return true
	}

	retryAfter := max(1, int(decision.RetryAfter.Round(time.Second).Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error": "rate limit exceeded",
	})
	return false
}

func shouldRateLimit(r *http.Request) bool {
	if r.Method == http.MethodGet {
		return false
	}
	if r.Method == http.MethodPost && r.URL.Path == "/v1/jobs" {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/v1/jobs")
}
