package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorIncludesCause(t *testing.T) {
	cause := stderrors.New("dial tcp: timeout")
	err := NetworkError("Could not create the meeting room", cause)

	assert.Equal(t, ErrCodeNetwork, err.Code)
	assert.Equal(t, http.StatusBadGateway, err.StatusCode)
	assert.Contains(t, err.Error(), "dial tcp: timeout")
	assert.ErrorIs(t, err, cause)
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("join flow: %w", DeviceError("cannot start camera", nil))

	assert.True(t, HasCode(err, ErrCodeDevice))
	assert.False(t, HasCode(err, ErrCodeNetwork))
	assert.False(t, HasCode(stderrors.New("plain"), ErrCodeDevice))
}

func TestStaleRoomError_CarriesRoomID(t *testing.T) {
	err := StaleRoomError("EXPIRED123")

	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, map[string]string{"room_id": "EXPIRED123"}, err.Details)
}

func TestGetAppError(t *testing.T) {
	appErr := ProtocolError("unknown payload type", nil)
	assert.Same(t, appErr, GetAppError(fmt.Errorf("wrapped: %w", appErr)))

	internal := GetAppError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, internal.Code)
	assert.Equal(t, "boom", internal.Message)
}
