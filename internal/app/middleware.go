package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"quill/api/internal/accesslog"
	"quill/api/internal/auth"
)

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func newRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id.String()
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = newRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.setCORSHeaders(writer.Header(), r.Header.Get("Origin"))
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.logRequest(r, requestID, writer.status, time.Since(started))
	})
}

func (s *HTTPServer) logRequest(r *http.Request, requestID string, status int, elapsed time.Duration) {
	log.WithFields(log.Fields{
		"request_id":  requestID,
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      status,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("request")

	if s.opts.AccessLog == nil {
		return
	}
	entry := accesslog.Entry{
		Timestamp:  time.Now(),
		IP:         clientIP(r),
		StatusCode: status,
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		Duration:   elapsed.Seconds(),
		Service:    s.opts.ServiceName,
	}
	if err := s.opts.AccessLog.Write(context.Background(), entry); err != nil {
		log.Warnf("[accesslog] failed to queue entry for request %s: %v", entry.RequestID, err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) setCORSHeaders(header http.Header, origin string) {
	if allowed := s.allowedOrigin(origin); allowed != "" {
		header.Set("Access-Control-Allow-Origin", allowed)
		if allowed != "*" {
			header.Set("Access-Control-Allow-Credentials", "true")
			header.Add("Vary", "Origin")
		}
	}
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func (s *HTTPServer) allowedOrigin(origin string) string {
	for _, candidate := range s.opts.CORSOrigins {
		if candidate == "*" {
			return "*"
		}
		if origin != "" && candidate == origin {
			return origin
		}
	}
	return ""
}

// requireAdmin guards the internal routes with the shared admin key.
func (s *HTTPServer) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.AdminKeys.Configured() {
			writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Admin API key is not configured", nil)
			return
		}
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", nil)
			return
		}
		if err := s.opts.AdminKeys.Verify(bearerToken(r)); err != nil {
			if !errors.Is(err, auth.ErrInvalidKey) && !errors.Is(err, auth.ErrMissingKey) {
				s.fail(w, r, err)
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key", nil)
			return
		}
		next(w, r)
	}
}

// rateLimited counts the request against the client's window for scope.
// Limiter failures let the request through.
func (s *HTTPServer) rateLimited(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Limiter == nil {
			next(w, r)
			return
		}
		decision, err := s.opts.Limiter.Allow(r.Context(), scope+":"+clientIP(r))
		if err != nil {
			log.WithError(err).WithField("request_id", requestIDFrom(r.Context())).Warn("[ratelimit] limiter unavailable, allowing request")
			next(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
