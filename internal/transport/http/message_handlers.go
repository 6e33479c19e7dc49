package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/airchat/airchat-server/internal/core"
	"github.com/airchat/airchat-server/internal/proto"
	"github.com/airchat/airchat-server/internal/store"
)

// MessageHandlers provides HTTP handlers for conversation endpoints. They
// share the relay with the WebSocket transport, so a REST fetch produces
// the same read receipts and pushes as the socket protocol.
type MessageHandlers struct {
	relay *core.Relay
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(relay *core.Relay, st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		relay: relay,
		store: st,
		log:   logger,
	}
}

// SendMessageRequest represents the message send request body.
type SendMessageRequest struct {
	Text       string `json:"text,omitempty"`
	Attachment string `json:"attachment,omitempty"`
}

// ChatUserResponse is a sidebar entry: a user plus the caller's unread
// count for messages from them.
type ChatUserResponse struct {
	UserResponse
	UnreadCount int64 `json:"unread_count"`
}

func counterpartParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return 0, false
	}
	return id, true
}

// ListChatUsers returns every other user with the caller's unread counts.
// GET /api/messages/users
func (h *MessageHandlers) ListChatUsers(c *gin.Context) {
	userID := userIDFrom(c)

	users, err := h.store.ListUsersExcept(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	counts, err := h.store.UnreadCounts(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load unread counts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]ChatUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, ChatUserResponse{
			UserResponse: userResponse(u),
			UnreadCount:  counts[u.ID],
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetConversation marks the conversation as seen and returns its history.
// GET /api/messages/:id
func (h *MessageHandlers) GetConversation(c *gin.Context) {
	counterpartID, ok := counterpartParam(c)
	if !ok {
		return
	}

	history, err := h.relay.OpenConversation(c.Request.Context(), userIDFrom(c), counterpartID)
	if err != nil {
		h.log.Error().Err(err).Int64("counterpart_id", counterpartID).Msg("failed to open conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.EventMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, messageJSON(msg))
	}
	c.JSON(http.StatusOK, out)
}

// SendMessage delivers a message to another user.
// POST /api/messages/send/:id
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	receiverID, ok := counterpartParam(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.relay.Send(c.Request.Context(), userIDFrom(c), receiverID, req.Text, req.Attachment)
	if err != nil {
		var coreErr *core.CoreError
		if errors.As(err, &coreErr) && coreErr.Code == core.ErrCodeInvalidMessage {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: coreErr.Message})
			return
		}
		h.log.Error().Err(err).Int64("receiver_id", receiverID).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, messageJSON(msg))
}

// DeleteConversation removes the conversation with the given user.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteConversation(c *gin.Context) {
	counterpartID, ok := counterpartParam(c)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(c.Request.Context(), userIDFrom(c), counterpartID); err != nil {
		h.log.Error().Err(err).Int64("counterpart_id", counterpartID).Msg("failed to delete conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "conversation deleted"})
}

// ClearHistory removes every message involving the caller.
// DELETE /api/messages
func (h *MessageHandlers) ClearHistory(c *gin.Context) {
	userID := userIDFrom(c)
	if err := h.store.DeleteAllForUser(c.Request.Context(), userID); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to clear history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "chat history cleared"})
}
