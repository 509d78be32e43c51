package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
	"github.com/vietddude/pipesync/internal/sync/classify"
	"github.com/vietddude/pipesync/internal/sync/engine"
)

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()

	ok, err := s.lock.Acquire(ctx, userID)
	if err != nil {
		s.log.Error("sync lock acquire failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "sync could not be started, please try again")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "a sync is already running for this user")
		return
	}
	defer func() {
		if err := s.lock.Release(ctx, userID); err != nil {
			s.log.Error("sync lock release failed", "user_id", userID, "error", err)
		}
	}()

	var opts engine.Options
	switch r.URL.Query().Get("type") {
	case "":
	case string(domain.SyncTypeFull):
		opts.SyncType = domain.SyncTypeFull
	case string(domain.SyncTypeIncremental):
		opts.SyncType = domain.SyncTypeIncremental
	default:
		writeError(w, http.StatusBadRequest, "sync type must be FULL or INCREMENTAL")
		return
	}

	result, err := s.engine.Run(ctx, userID, opts)
	if err != nil && result == nil {
		s.writeClassified(w, userID, err)
		return
	}

	status := http.StatusOK
	body := map[string]any{"result": result}
	if err != nil {
		c := classify.Classify(err)
		body["error"] = c.UserMessage
		body["error_kind"] = string(c.Kind)
	}
	writeJSON(w, status, body)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	rows, err := s.history.ListByUser(r.Context(), userID, limit)
	if err != nil {
		s.writeClassified(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": rows})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		s.writeClassified(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sync_status":         user.SyncStatus,
		"last_sync_timestamp": user.LastSyncTimestamp,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	results, err := s.search.Search(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		s.writeClassified(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			healthy = false
		} else {
			report[name] = "ok"
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": report})
}

// writeClassified maps an error to an HTTP status via its classification
// and returns the classification's user-facing message.
func (s *Server) writeClassified(w http.ResponseWriter, userID string, err error) {
	if errors.Is(err, storage.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	c := classify.Classify(err)
	status := http.StatusInternalServerError
	switch c.Kind {
	case classify.KindValidation:
		status = http.StatusBadRequest
	case classify.KindAuthentication:
		status = http.StatusUnauthorized
	case classify.KindRateLimit:
		status = http.StatusTooManyRequests
	case classify.KindNetwork, classify.KindExternalAPI:
		status = http.StatusBadGateway
	}

	s.log.Error("request failed",
		"user_id", userID,
		"kind", c.Kind,
		"error", err,
	)
	writeJSON(w, status, map[string]any{
		"error":      c.UserMessage,
		"error_kind": string(c.Kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
