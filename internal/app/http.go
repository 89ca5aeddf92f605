package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"quill/api/internal/accesslog"
	"quill/api/internal/auth"
	"quill/api/internal/ratelimit"
	"quill/api/internal/store"
)

const maxBodyBytes = 1 << 20

// RateLimiter is implemented by *ratelimit.RedisLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
	Ping(ctx context.Context) error
}

// AccessLogSink is implemented by *accesslog.KafkaSink.
type AccessLogSink interface {
	Write(ctx context.Context, entry accesslog.Entry) error
}

// HTTPOptions configures the optional collaborators of HTTPServer. Nil
// Limiter or AccessLog disables that feature.
type HTTPOptions struct {
	CORSOrigins []string
	ServiceName string
	AdminKeys   *auth.KeyChecker
	Limiter     RateLimiter
	AccessLog   AccessLogSink
}

type HTTPServer struct {
	service *Service
	opts    HTTPOptions
}

func NewHTTPServer(service *Service, opts HTTPOptions) *HTTPServer {
	return &HTTPServer{service: service, opts: opts}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	// /posts/tags and the internal routes must be registered before /posts/{slug}.
	api.HandleFunc("/posts", s.handleListPosts).Methods(http.MethodGet)
	api.HandleFunc("/posts/tags", s.handleListTags).Methods(http.MethodGet)
	api.HandleFunc("/posts/internal/posts", s.requireAdmin(s.handleCreatePost)).Methods(http.MethodPost)
	api.HandleFunc("/posts/internal/posts/{slug}", s.requireAdmin(s.handleUpdatePost)).Methods(http.MethodPut)
	api.HandleFunc("/posts/internal/posts/{slug}", s.requireAdmin(s.handleDeletePost)).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{slug}", s.handleGetPost).Methods(http.MethodGet)

	api.HandleFunc("/comments/posts/{slug}/comments", s.handleListComments).Methods(http.MethodGet)
	api.HandleFunc("/comments", s.rateLimited("comments", s.handleCreateComment)).Methods(http.MethodPost)

	api.HandleFunc("/subscriptions", s.rateLimited("subscriptions", s.handleSubscribe)).Methods(http.MethodPost)
	api.HandleFunc("/subscriptions", s.rateLimited("subscriptions", s.handleUnsubscribe)).Methods(http.MethodDelete)
	api.HandleFunc("/subscriptions/internal/subscriptions", s.requireAdmin(s.handleListSubscriptions)).Methods(http.MethodGet)

	return s.withMiddleware(router)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	checks := map[string]any{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			ready = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	check("database", s.service.Ping)
	if s.opts.Limiter != nil {
		check("redis", s.opts.Limiter.Ping)
	}

	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleListPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	in := ListPostsInput{
		Page:   1,
		Limit:  10,
		Tag:    query.Get("tag"),
		Search: query.Get("search"),
	}

	var issues []FieldIssue
	for _, param := range []struct {
		name   string
		target *int
	}{{"page", &in.Page}, {"limit", &in.Limit}} {
		raw := query.Get(param.name)
		if raw == "" {
			continue
		}
		value, ok := parseDigits(raw)
		if !ok {
			issues = append(issues, FieldIssue{Field: param.name, Message: "must be a positive integer"})
			continue
		}
		*param.target = value
	}
	if len(issues) > 0 {
		s.fail(w, r, validationFailed(issues))
		return
	}

	result, err := s.service.ListPosts(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.service.ListTagNames(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *HTTPServer) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.service.GetPost(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *HTTPServer) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var body CreatePostInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.CreatePost(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *HTTPServer) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var body UpdatePostInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.UpdatePost(r.Context(), mux.Vars(r)["slug"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *HTTPServer) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePost(r.Context(), mux.Vars(r)["slug"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.service.ListComments(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var body CreateCommentInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	comment, err := s.service.CreateComment(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *HTTPServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body SubscriptionInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	subscription, err := s.service.Subscribe(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscription)
}

func (s *HTTPServer) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var body SubscriptionInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Unsubscribe(r.Context(), body); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subscriptions, err := s.service.ListSubscriptions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subscriptions})
}

// fail writes the mapped error response. Internal errors are logged with the
// request id and never echoed to the client.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"request_id": requestIDFrom(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("[http] request failed")
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body too large")
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// parseDigits accepts only non-empty ASCII digit strings that fit in an int.
func parseDigits(raw string) (int, bool) {
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrDuplicate) {
		return http.StatusConflict, "CONFLICT", "Unique constraint violation", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
