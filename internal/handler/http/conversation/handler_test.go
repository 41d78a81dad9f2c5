package conversation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/middleware"
	"wadesk-backend/internal/service/conversation"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/pagination"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) ListConversations(ctx context.Context, actor domain.ParticipantRef, convType domain.ConversationType, params *pagination.Params) (*pagination.Page, error) {
	args := m.Called(ctx, actor, convType, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page), args.Error(1)
}

func (m *MockConversationService) SearchConversations(ctx context.Context, actor domain.ParticipantRef, q string, params *pagination.Params) ([]*conversation.ConversationView, error) {
	args := m.Called(ctx, actor, q, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*conversation.ConversationView), args.Error(1)
}

var admin = domain.ParticipantRef{ID: "admin-1", Kind: domain.ParticipantAdmin}

func setupRouter(svc ConversationService) *gin.Engine {
	h := NewHandler(svc)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextParticipant, admin)
		c.Next()
	})
	router.GET("/v1/conversations", h.ListConversations)
	router.GET("/v1/conversations/search", h.SearchConversations)
	return router
}

func TestListConversations(t *testing.T) {
	svc := new(MockConversationService)
	svc.On("ListConversations", mock.Anything, admin, domain.ConversationUserToCustomer, mock.Anything).
		Return(&pagination.Page{Page: 1, Limit: 50, Items: []*conversation.ConversationView{}}, nil)

	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/conversations?type=user_to_customer", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestListConversations_InvalidType(t *testing.T) {
	svc := new(MockConversationService)
	svc.On("ListConversations", mock.Anything, admin, domain.ConversationType("group"), mock.Anything).
		Return(nil, apperrors.InvalidArgumentError("unknown conversation type"))

	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/conversations?type=group", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchConversations(t *testing.T) {
	svc := new(MockConversationService)
	svc.On("SearchConversations", mock.Anything, admin, "acme", mock.Anything).
		Return([]*conversation.ConversationView{{Conversation: &domain.Conversation{ID: "conv-1"}}}, nil)

	w := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/conversations/search?q=acme", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"conv-1"`)
}
