package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/activity"
	"skill-routing-engine/pkg/catalogue"
	"skill-routing-engine/pkg/conversation"
	"skill-routing-engine/pkg/models"
	"skill-routing-engine/pkg/routing"
	"skill-routing-engine/pkg/schedule"
)

// Router is the routing service as seen by the HTTP layer
type Router interface {
	HandleEvent(ctx context.Context, event models.InboundEvent) (*models.RoutingOutcome, error)
	Conversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	CloseConversation(ctx context.Context, conversationID string) error
	ActiveConversations(ctx context.Context) (int64, error)
	IsLeader(ctx context.Context) bool
}

type CatalogueSource interface {
	Snapshot() (*catalogue.Snapshot, error)
}

type Invalidator interface {
	Broadcast(ctx context.Context) error
}

type ActivityReader interface {
	Summary(ctx context.Context, day time.Time) (*activity.Summary, error)
}

type Handler struct {
	router      Router
	catalogue   CatalogueSource
	invalidator Invalidator
	activity    ActivityReader
	logger      *logrus.Logger
	now         func() time.Time
}

func NewHandler(router Router, source CatalogueSource, invalidator Invalidator, reader ActivityReader, logger *logrus.Logger) *Handler {
	return &Handler{
		router:      router,
		catalogue:   source,
		invalidator: invalidator,
		activity:    reader,
		logger:      logger,
		now:         time.Now,
	}
}

func (h *Handler) RouteEvent(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	if conversationID == "" {
		http.Error(w, "Missing conversation ID", http.StatusBadRequest)
		return
	}

	var event models.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	event.ConversationID = conversationID

	outcome, err := h.router.HandleEvent(r.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, routing.ErrInvalidEvent):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, conversation.ErrConversationLocked):
			http.Error(w, "Conversation is busy", http.StatusConflict)
		default:
			h.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to route event")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	conv, err := h.router.Conversation(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to load conversation")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	if err := h.router.CloseConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, conversation.ErrConversationLocked) {
			http.Error(w, "Conversation is busy", http.StatusConflict)
			return
		}
		h.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to close conversation")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type skillSummary struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Category      models.Category `json:"category"`
	Enabled       bool            `json:"enabled"`
	Channels      models.Channels `json:"channels"`
	WeeklyMinutes int             `json:"weekly_minutes"`
	InWindow      bool            `json:"in_window"`
}

func (h *Handler) ListSkills(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalogue.Snapshot()
	if err != nil {
		h.logger.WithError(err).Error("Catalogue unavailable")
		http.Error(w, "Catalogue unavailable", http.StatusServiceUnavailable)
		return
	}

	now := h.now().UTC()
	skills := make([]skillSummary, 0, len(snap.Skills))
	for _, s := range snap.Skills {
		inWindow, _ := schedule.InWindow(s.Schedule, now)
		skills = append(skills, skillSummary{
			ID:            s.ID,
			Name:          s.Name,
			Category:      s.Category,
			Enabled:       s.Enabled,
			Channels:      s.Channels,
			WeeklyMinutes: schedule.WeeklyMinutes(s.Schedule),
			InWindow:      inWindow,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"agent":     snap.Agent,
		"skills":    skills,
	})
}

func (h *Handler) InvalidateCatalogue(w http.ResponseWriter, r *http.Request) {
	if err := h.invalidator.Broadcast(r.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to broadcast catalogue invalidation")
		http.Error(w, "Invalidation not propagated", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":        true,
		"invalidated_at": h.now(),
	})
}

func (h *Handler) ActivitySummary(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	summary, err := h.activity.Summary(r.Context(), day)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load activity summary")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.router.ActiveConversations(r.Context())
	if err != nil {
		http.Error(w, "Health check failed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "healthy",
		"is_leader":            h.router.IsLeader(r.Context()),
		"active_conversations": count,
		"timestamp":            h.now(),
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	count, err := h.router.ActiveConversations(r.Context())
	if err != nil {
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"is_leader":            h.router.IsLeader(r.Context()),
		"active_conversations": count,
		"timestamp":            h.now(),
	}
	if snap, err := h.catalogue.Snapshot(); err == nil {
		response["catalogue_version"] = snap.Version
		response["skills"] = len(snap.Skills)
	}

	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
