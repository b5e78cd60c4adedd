package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/server/auth"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags the request with an id, logs it and records metrics
// under the matched route name.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if cr := mux.CurrentRoute(r); cr != nil && cr.GetName() != "" {
			route = cr.GetName()
		}
		took := time.Since(start)
		s.metrics.ObserveHTTP(route, rec.status, took)

		s.logger.Info(r.Context(), "request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"duration", took,
		)
	})
}

// requireSubmissionToken admits requests whose token is bound to the
// {sub_id} of the route.
func (s *HTTPServer) requireSubmissionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get(common.AuthorizationHeaderName))
		if token == "" {
			token = r.URL.Query().Get(common.TokenQueryParam)
		}
		if token == "" {
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		}

		sub, err := auth.GetSubmissionIDFromToken(token, s.secret)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if sub != mux.Vars(r)["sub_id"] {
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
