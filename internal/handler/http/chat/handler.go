package chat

import (
	"context"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/middleware"
	"wadesk-backend/internal/service/chat"
	"wadesk-backend/internal/service/storage"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/pagination"
	"wadesk-backend/pkg/response"
	"wadesk-backend/pkg/sanitize"
)

// MessageService is the chat service as seen by the HTTP layer
type MessageService interface {
	SendMessage(ctx context.Context, input *chat.SendMessageInput) (*domain.MessageView, error)
	ListMessages(ctx context.Context, actor domain.ParticipantRef, conversationID string, params *pagination.Params) (*pagination.Page, error)
	MarkRead(ctx context.Context, actor domain.ParticipantRef, conversationID string) error
	SetStarred(ctx context.Context, actor domain.ParticipantRef, messageID string, starred bool) (*domain.MessageView, error)
	ForwardMessage(ctx context.Context, actor domain.ParticipantRef, messageID string, conversationIDs []string) ([]*domain.MessageView, error)
	SearchMessages(ctx context.Context, actor domain.ParticipantRef, query string, params *pagination.Params) ([]*domain.MessageView, error)
	ListStarred(ctx context.Context, actor domain.ParticipantRef, params *pagination.Params) ([]*domain.MessageView, error)
}

// BlobStore stages uploaded attachments
type BlobStore interface {
	Put(ctx context.Context, folder string, obj *storage.Object) (string, error)
	Delete(ctx context.Context, key string) error
}

// PresenceReader lists online agents
type PresenceReader interface {
	Online(ctx context.Context) ([]string, error)
}

// Handler handles chat HTTP requests
type Handler struct {
	chatService    MessageService
	blob           BlobStore
	presence       PresenceReader
	uploadMaxBytes int64
}

// NewHandler creates a new chat handler
func NewHandler(chatService MessageService, blob BlobStore, presence PresenceReader, uploadMaxBytes int64) *Handler {
	return &Handler{
		chatService:    chatService,
		blob:           blob,
		presence:       presence,
		uploadMaxBytes: uploadMaxBytes,
	}
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id" binding:"required"`
	Text           string `json:"text" binding:"required"`
}

// StarRequest represents star toggle request
type StarRequest struct {
	Starred *bool `json:"starred" binding:"required"`
}

// ForwardRequest represents forward request
type ForwardRequest struct {
	ConversationIDs []string `json:"conversation_ids" binding:"required,min=1"`
}

// SendMessage handles sending a new message
// POST /v1/messages (JSON text, or multipart with "file")
func (h *Handler) SendMessage(c *gin.Context) {
	actor, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.sendAttachment(c, actor)
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	view, err := h.chatService.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		MessageID:      req.MessageID,
		ConversationID: req.ConversationID,
		Author:         actor,
		Kind:           domain.MessageText,
		Text:           req.Text,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, view)
}

func (h *Handler) sendAttachment(c *gin.Context, actor domain.ParticipantRef) {
	if h.uploadMaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploadMaxBytes)
	}

	conversationID := c.PostForm("conversation_id")
	if conversationID == "" {
		response.FromError(c, apperrors.MissingFieldError("conversation_id"))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.FromError(c, apperrors.MissingFieldError("file"))
		return
	}
	if header.Size <= 0 {
		response.ValidationError(c, "File is empty")
		return
	}

	kind, contentType := attachmentKind(header)
	if k := domain.MessageKind(c.PostForm("kind")); k != "" {
		if !k.IsMedia() {
			response.ValidationError(c, "kind must be image, video or file")
			return
		}
		kind = k
	}

	file, err := header.Open()
	if err != nil {
		response.FromError(c, apperrors.InvalidArgumentError("Unreadable upload"))
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	name := sanitize.Filename(header.Filename, "file")
	key, err := h.blob.Put(ctx, storage.FolderOutbound, &storage.Object{
		Name:        name,
		Size:        header.Size,
		ContentType: contentType,
		Body:        file,
	})
	if err != nil {
		response.FromError(c, apperrors.StorageError(err))
		return
	}

	view, err := h.chatService.SendMessage(ctx, &chat.SendMessageInput{
		MessageID:      c.PostForm("message_id"),
		ConversationID: conversationID,
		Author:         actor,
		Kind:           kind,
		Media: &domain.Media{
			Name:       name,
			Size:       header.Size,
			StorageKey: key,
			MimeType:   contentType,
		},
	})
	if err != nil {
		// 4xx means rejected before the message was written
		if apperrors.GetAppError(err).StatusCode < http.StatusInternalServerError {
			if delErr := h.blob.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				logger.FromContext(ctx).Warn("Failed to delete staged upload", zap.String("key", key), zap.Error(delErr))
			}
		}
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, view)
}

func attachmentKind(header *multipart.FileHeader) (domain.MessageKind, string) {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename))); byExt != "" {
			contentType = byExt
		}
	}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.MessageImage, contentType
	case strings.HasPrefix(contentType, "video/"):
		return domain.MessageVideo, contentType
	default:
		return domain.MessageFile, contentType
	}
}

// GetMessages retrieves conversation messages, newest first
// GET /v1/conversations/:id/messages?page=1&limit=50
func (h *Handler) GetMessages(c *gin.Context) {
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

	page, err := h.chatService.ListMessages(c.Request.Context(), actor, c.Param("id"), params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// MarkRead acknowledges the newest unseen message
// POST /v1/conversations/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	actor, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.chatService.MarkRead(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// StarMessage flags or unflags a message
// PATCH /v1/messages/:id/star
func (h *Handler) StarMessage(c *gin.Context) {
	actor, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req StarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	view, err := h.chatService.SetStarred(c.Request.Context(), actor, c.Param("id"), *req.Starred)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// ForwardMessage copies a message into other conversations
// POST /v1/messages/:id/forward
func (h *Handler) ForwardMessage(c *gin.Context) {
	actor, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	views, err := h.chatService.ForwardMessage(c.Request.Context(), actor, c.Param("id"), req.ConversationIDs)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"messages": views})
}

// SearchMessages searches text and attachment names
// GET /v1/messages/search?q=invoice
func (h *Handler) SearchMessages(c *gin.Context) {
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

	views, err := h.chatService.SearchMessages(c.Request.Context(), actor, c.Query("q"), params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"messages": views})
}

// GetStarred lists starred messages
// GET /v1/messages/starred
func (h *Handler) GetStarred(c *gin.Context) {
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

	views, err := h.chatService.ListStarred(c.Request.Context(), actor, params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"messages": views})
}

// GetPresence lists agents with an open live session
// GET /v1/presence
func (h *Handler) GetPresence(c *gin.Context) {
	online, err := h.presence.Online(c.Request.Context())
	if err != nil {
		response.FromError(c, apperrors.ExternalDependencyError("Presence unavailable", err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"online": online})
}
