package conversation

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/middleware"
	"wadesk-backend/internal/service/conversation"
	"wadesk-backend/pkg/pagination"
	"wadesk-backend/pkg/response"
)

// ConversationService lists and searches conversations
type ConversationService interface {
	ListConversations(ctx context.Context, actor domain.ParticipantRef, convType domain.ConversationType, params *pagination.Params) (*pagination.Page, error)
	SearchConversations(ctx context.Context, actor domain.ParticipantRef, query string, params *pagination.Params) ([]*conversation.ConversationView, error)
}

// Handler handles conversation HTTP requests
type Handler struct {
	conversationService ConversationService
}

// NewHandler creates a new conversation handler
func NewHandler(conversationService ConversationService) *Handler {
	return &Handler{
		conversationService: conversationService,
	}
}

// ListConversations lists the caller's conversations, newest activity first
// GET /v1/conversations?type=user_to_customer&page=1&limit=50
func (h *Handler) ListConversations(c *gin.Context) {
	actor, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	page, err := h.conversationService.ListConversations(c.Request.Context(), actor, domain.ConversationType(c.Query("type")), params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// SearchConversations searches customer details and last messages
// GET /v1/conversations/search?q=acme
func (h *Handler) SearchConversations(c *gin.Context) {
	actor, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	views, err := h.conversationService.SearchConversations(c.Request.Context(), actor, c.Query("q"), params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"conversations": views})
}
