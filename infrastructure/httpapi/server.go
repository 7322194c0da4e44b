// Package httpapi is the non-realtime CRUD surface: message history reads,
// bulk read-marking, deletion, and account register/login.
package httpapi

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"chat-relay/services"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Handler struct {
	log         *slog.Logger
	messages    contract.MessageStore
	authService services.IAuthService
	issuer      auth.TokenIssuer
}

func NewHandler(log *slog.Logger, messages contract.MessageStore,
	authService services.IAuthService, issuer auth.TokenIssuer) *Handler {
	return &Handler{log: log, messages: messages, authService: authService, issuer: issuer}
}

// Routes mounts the REST API on a fresh mux. Message routes require a valid
// bearer token; auth routes are open.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.Handle("GET /api/messages/room/{roomId}", h.protect(h.roomMessages))
	mux.Handle("GET /api/messages/unread/{userId}", h.protect(h.unreadMessages))
	mux.Handle("PUT /api/messages/mark-read", h.protect(h.markRoomRead))
	mux.Handle("DELETE /api/messages/{messageId}", h.protect(h.deleteMessage))
	return mux
}

// protect rejects requests without a valid "Bearer <jwt>" header.
func (h *Handler) protect(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			h.writeError(w, http.StatusUnauthorized, "No token or invalid format")
			return
		}
		if _, err := h.issuer.Validate(strings.TrimPrefix(header, "Bearer ")); err != nil {
			h.writeError(w, http.StatusUnauthorized, "Not authorized")
			return
		}
		next(w, r)
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := h.authService.Register(req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			h.writeError(w, http.StatusConflict, "User already exists")
		case errors.Is(err, apperrors.ErrInvalidPassword):
			h.writeError(w, http.StatusBadRequest, "Password too weak")
		default:
			h.writeError(w, http.StatusBadRequest, "Invalid register request")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	token, err := h.authService.Login(req)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredential) {
			h.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid login request")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) roomMessages(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(r.PathValue("roomId"))
	messages, err := h.messages.GetRoomMessages(r.Context(), roomID)
	if err != nil {
		h.serverError(w, "fetching room messages", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponses(messages))
}

func (h *Handler) unreadMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	messages, err := h.messages.GetUnseenMessages(r.Context(), userID)
	if err != nil {
		h.serverError(w, "fetching unread messages", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponses(messages))
}

func (h *Handler) markRoomRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" || req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "roomId and userId are required")
		return
	}
	updated, err := h.messages.MarkRoomSeen(r.Context(), domain.RoomID(req.RoomID), req.UserID)
	if err != nil {
		h.serverError(w, "marking room as read", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "Room marked as read", "updated": updated})
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("messageId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid message id")
		return
	}
	if err := h.messages.DeleteMessage(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			h.writeError(w, http.StatusNotFound, "Message not found")
			return
		}
		h.serverError(w, "deleting message", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted"})
}

type messageResponse struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	RoomID    string `json:"roomId"`
	Text      string `json:"text"`
	Delivered bool   `json:"delivered"`
	Seen      bool   `json:"seen"`
	CreatedAt string `json:"createdAt"`
}

func toResponses(messages []domain.Message) []messageResponse {
	return lo.Map(messages, func(m domain.Message, _ int) messageResponse {
		return messageResponse{
			ID:        m.ID.String(),
			SenderID:  m.SenderID,
			RoomID:    string(m.RoomID),
			Text:      m.Text,
			Delivered: m.Delivered,
			Seen:      m.Seen,
			CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		}
	})
}

func (h *Handler) serverError(w http.ResponseWriter, action string, err error) {
	h.log.Error(action, "error", err)
	h.writeError(w, http.StatusInternalServerError, "Server error")
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"message": message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("encoding response", "error", err)
	}
}
