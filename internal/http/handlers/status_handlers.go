package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"chargehub/internal/service"
	"chargehub/internal/status"
)

// NewCurrentStatusHandler returns GET /status/current/{ev_id} handler.
func NewCurrentStatusHandler(engine *status.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evID := pathTail(r, "/status/current/")
		if evID == "" {
			writeError(w, http.StatusBadRequest, "ev id is required")
			return
		}

		view, err := engine.CurrentStatus(r.Context(), evID)
		if errors.Is(err, status.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no session found for ev id")
			return
		}
		if err != nil {
			logger.Error("current status query failed", zap.String("ev_id", evID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to compute status")
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

// NewSessionsHandler returns GET /status/sessions/{ev_id} handler.
func NewSessionsHandler(engine *status.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evID := pathTail(r, "/status/sessions/")
		if evID == "" {
			writeError(w, http.StatusBadRequest, "ev id is required")
			return
		}

		sessions, err := engine.Sessions(r.Context(), evID)
		if err != nil {
			logger.Error("sessions query failed", zap.String("ev_id", evID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch sessions")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
	}
}

// NewReadingsHandler returns GET /status/meter-values/{session_id} handler.
func NewReadingsHandler(engine *status.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := pathTail(r, "/status/meter-values/")
		sessionID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		readings, err := engine.Readings(r.Context(), sessionID)
		if err != nil {
			logger.Error("readings query failed", zap.Int64("session_id", sessionID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch meter values")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"meter_values": readings})
	}
}

// NewActiveSessionHandler returns GET /status/active/{ev_id} handler, a
// cache-backed liveness view that never touches the database.
func NewActiveSessionHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evID := pathTail(r, "/status/active/")
		if evID == "" {
			writeError(w, http.StatusBadRequest, "ev id is required")
			return
		}

		session, err := svc.ActiveSession(r.Context(), evID)
		if err != nil {
			logger.Error("active session lookup failed", zap.String("ev_id", evID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch active session")
			return
		}
		if session == nil {
			writeError(w, http.StatusNotFound, "no active session for ev id")
			return
		}

		writeJSON(w, http.StatusOK, session)
	}
}

func pathTail(r *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
}
