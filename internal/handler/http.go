package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/push"
	"github.com/roster-sync/internal/service"
	"github.com/roster-sync/internal/websocket"
)

// PushStats reports write-through queue counters
type PushStats interface {
	Stats() push.Stats
}

// SyncState reports which team is being synced
type SyncState interface {
	TeamID() string
	IsRunning() bool
}

// Handler provides HTTP handlers for the roster API
type Handler struct {
	service *service.RosterService
	hub     *websocket.Hub
	pusher  PushStats
	sync    SyncState
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.RosterService, hub *websocket.Hub, pusher PushStats, sync SyncState, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		pusher:  pusher,
		sync:    sync,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/session", h.SignIn)
		r.Delete("/session", h.Logout)

		r.Get("/sync", h.GetSyncStatus)
		r.Post("/releases/check", h.CheckReleases)

		r.Route("/teams", func(r chi.Router) {
			r.Get("/", h.ListTeams)
			r.Post("/", h.CreateTeam)
			r.Get("/active", h.GetActiveTeam)

			r.Route("/{teamID}", func(r chi.Router) {
				r.Put("/", h.UpdateTeam)
				r.Delete("/", h.LeaveTeam)
				r.Post("/switch", h.SwitchTeam)
			})
		})

		r.Route("/players", func(r chi.Router) {
			r.Post("/", h.AddPlayer)
			r.Put("/{playerID}", h.UpdatePlayer)
			r.Put("/{playerID}/status", h.SetPlayerStatus)
			r.Delete("/{playerID}", h.RemovePlayer)
		})

		r.Route("/games", func(r chi.Router) {
			r.Post("/", h.AddGame)
			r.Put("/{gameID}", h.UpdateGame)
			r.Delete("/{gameID}", h.RemoveGame)
			r.Post("/{gameID}/responses", h.RespondToGame)
			r.Post("/{gameID}/release", h.ReleaseGameInvites)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.AddEvent)
			r.Put("/{eventID}", h.UpdateEvent)
			r.Delete("/{eventID}", h.RemoveEvent)
			r.Post("/{eventID}/responses", h.RespondToEvent)
			r.Post("/{eventID}/release", h.ReleaseEventInvites)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", h.SendChatMessage)
			r.Delete("/{messageID}", h.DeleteChatMessage)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/periods", h.AddPaymentPeriod)
			r.Put("/periods/{periodID}", h.UpdatePaymentPeriod)
			r.Delete("/periods/{periodID}", h.RemovePaymentPeriod)
			r.Post("/periods/{periodID}/entries", h.RecordPayment)
			r.Delete("/entries/{entryID}", h.RemovePaymentEntry)
		})

		r.Route("/photos", func(r chi.Router) {
			r.Post("/", h.AddPhoto)
			r.Delete("/{photoID}", h.RemovePhoto)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/", h.Notify)
			r.Post("/read", h.MarkAllNotificationsRead)
			r.Post("/{notificationID}/read", h.MarkNotificationRead)
			r.Delete("/{notificationID}", h.RemoveNotification)
		})

		r.Route("/polls", func(r chi.Router) {
			r.Post("/", h.AddPoll)
			r.Post("/{pollID}/votes", h.Vote)
			r.Delete("/{pollID}", h.RemovePoll)
		})

		r.Route("/links", func(r chi.Router) {
			r.Post("/", h.AddLink)
			r.Delete("/{linkID}", h.RemoveLink)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCreated writes a 201 JSON response
func (h *Handler) writeCreated(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to a status code. Unexpected
// errors are logged and hidden from the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, action string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrTeamExists), errors.Is(err, domain.ErrNoActiveTeam):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "action", action, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decode reads a JSON request body
func decode[T any](r *http.Request) (T, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return v, domain.ErrInvalidRequest
	}
	return v, nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once a session exists
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if !h.service.Store().Session().LoggedIn {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    map[string]string{"status": "signed out"},
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetSyncStatus reports the sync and write-through state
func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"team_id": h.sync.TeamID(),
		"running": h.sync.IsRunning(),
		"version": h.service.Store().Version(),
		"push":    h.pusher.Stats(),
	})
}
