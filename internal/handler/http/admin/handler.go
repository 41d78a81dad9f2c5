package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/service/chat"
	"wadesk-backend/internal/service/conversation"
	"wadesk-backend/pkg/audit"
	"wadesk-backend/pkg/response"
)

// DirectoryService manages customers, seats and tenant defaults
type DirectoryService interface {
	OnboardCustomer(ctx context.Context, input *conversation.OnboardCustomerInput) (*domain.Customer, *domain.Conversation, error)
	ProvisionUser(ctx context.Context, userID string) ([]*domain.Conversation, error)
	Reassign(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)
	DefaultUser(ctx context.Context) (*domain.User, error)
	SetDefaultUser(ctx context.Context, userID string) (*domain.User, error)
}

// RepairService rebuilds derived conversation state
type RepairService interface {
	RepairConversation(ctx context.Context, conversationID string) (*chat.RepairResult, error)
	RepairAll(ctx context.Context) (*chat.RepairSummary, error)
}

// AuditReader lists recorded admin actions
type AuditReader interface {
	Recent(ctx context.Context, limit, offset int) ([]*audit.Event, error)
}

const maxAuditPage = 200

// Handler handles admin HTTP requests. Routes are mounted behind RequireRole("admin").
type Handler struct {
	directory DirectoryService
	repair    RepairService
	audit     AuditReader
}

// NewHandler creates a new admin handler
func NewHandler(directory DirectoryService, repair RepairService, auditReader AuditReader) *Handler {
	return &Handler{
		directory: directory,
		repair:    repair,
		audit:     auditReader,
	}
}

// CreateCustomerRequest represents customer onboarding request
type CreateCustomerRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone" binding:"required"`
	Company        string `json:"company"`
	AssignedUserID string `json:"assigned_user_id"`
}

// UserRequest carries a user id
type UserRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CreateCustomer onboards a customer and opens its conversation
// POST /v1/admin/customers
func (h *Handler) CreateCustomer(c *gin.Context) {
	var req CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	customer, conv, err := h.directory.OnboardCustomer(c.Request.Context(), &conversation.OnboardCustomerInput{
		Name:           req.Name,
		Phone:          req.Phone,
		Company:        req.Company,
		AssignedUserID: req.AssignedUserID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"customer":     customer,
		"conversation": conv,
	})
}

// ProvisionUser opens the missing agent conversations for a user
// POST /v1/admin/users/:id/provision
func (h *Handler) ProvisionUser(c *gin.Context) {
	created, err := h.directory.ProvisionUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"created":       len(created),
		"conversations": created,
	})
}

// Reassign moves a customer conversation to another user
// PATCH /v1/admin/conversations/:id/assignee
func (h *Handler) Reassign(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conv, err := h.directory.Reassign(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// RepairConversation recomputes last message and unread counters
// POST /v1/admin/conversations/:id/repair
func (h *Handler) RepairConversation(c *gin.Context) {
	result, err := h.repair.RepairConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// RepairAll runs the repair pass over every conversation
// POST /v1/admin/repair
func (h *Handler) RepairAll(c *gin.Context) {
	summary, err := h.repair.RepairAll(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// GetDefaultUser returns the user new customers are assigned to
// GET /v1/admin/default-user
func (h *Handler) GetDefaultUser(c *gin.Context) {
	user, err := h.directory.DefaultUser(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// SetDefaultUser changes the user new customers are assigned to
// PUT /v1/admin/default-user
func (h *Handler) SetDefaultUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	user, err := h.directory.SetDefaultUser(c.Request.Context(), req.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// GetAuditLog lists recent admin actions, newest first
// GET /v1/admin/audit?limit=50&offset=0
func (h *Handler) GetAuditLog(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > maxAuditPage {
		response.ValidationError(c, "limit must be between 1 and 200")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		response.ValidationError(c, "offset must be non-negative")
		return
	}

	events, err := h.audit.Recent(c.Request.Context(), limit, offset)
	if err != nil {
		response.InternalError(c, "Failed to read audit log")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}
