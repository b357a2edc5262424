package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorKeepsDomainErrors(t *testing.T) {
	wrapped := fmt.Errorf("record check: %w", NewAlreadyRegistered())

	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, CodeAlreadyRegistered, de.Code)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	assert.NotEmpty(t, de.Detail)
}

func TestToDomainErrorFallsBackToInternal(t *testing.T) {
	de := ToDomainError(errors.New("boom"))
	require.NotNil(t, de)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
}

func TestMapErrorNil(t *testing.T) {
	assert.NoError(t, MapError(nil))
	assert.Nil(t, ToDomainError(nil))
}

func TestStoreUnavailableUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreUnavailable(cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeStoreUnavailable))
	assert.False(t, HasCode(err, CodeAlreadyRegistered))
	assert.False(t, HasCode(cause, CodeStoreUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, ToDomainError(err).HTTPStatus)
}
