package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithInternalKeepsOriginal(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrUnavailable.WithInternal(cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, ErrUnavailable.Code, err.Code)
	require.Contains(t, err.Error(), "disk full")

	// The shared sentinel must not be mutated.
	require.Nil(t, ErrUnavailable.Internal)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))

	appErr := FromError(ErrConflict)
	require.Equal(t, http.StatusConflict, appErr.StatusCode)

	wrapped := FromError(errors.New("boom"))
	require.Equal(t, ErrInternalServer.Code, wrapped.Code)
}

func TestNewValidation(t *testing.T) {
	err := NewValidation("name is required")
	require.Equal(t, "VALIDATION_FAILED", err.Code)
	require.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)
}
