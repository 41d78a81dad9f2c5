package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppError_Wrapped(t *testing.T) {
	base := ForbiddenError("not a participant")
	wrapped := fmt.Errorf("send: %w", base)

	appErr := GetAppError(wrapped)
	assert.Equal(t, ErrCodeForbidden, appErr.Code)
	assert.Equal(t, http.StatusForbidden, appErr.StatusCode)
	assert.True(t, IsAppError(wrapped))
}

func TestGetAppError_Plain(t *testing.T) {
	appErr := GetAppError(fmt.Errorf("boom"))
	assert.Equal(t, ErrCodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.EqualError(t, appErr.Unwrap(), "boom")
}

func TestExternalDependencyError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: timeout")
	err := ExternalDependencyError("media fetch failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.True(t, HasCode(err, ErrCodeExternalDependency))
	assert.Contains(t, err.Error(), "caused by")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(MessageNotFoundError()))
	assert.True(t, IsNotFound(fmt.Errorf("x: %w", ConversationNotFoundError())))
	assert.False(t, IsNotFound(InvalidArgumentError("bad")))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))
}
