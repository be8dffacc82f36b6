package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryStatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", NewValidationError("title is required", nil), CodeValidation, http.StatusBadRequest},
		{"conflict", NewConflict("User already exists", nil), CodeConflict, http.StatusBadRequest},
		{"credentials", NewInvalidCredentials(), CodeInvalidCredentials, http.StatusBadRequest},
		{"unauthorized", NewUnauthorized("invalid token"), CodeUnauthorized, http.StatusUnauthorized},
		{"not found", NewNotFound("task", nil), CodeNotFound, http.StatusNotFound},
		{"persistence", NewPersistenceError(errors.New("conn reset")), CodePersistence, http.StatusInternalServerError},
		{"internal", NewInternalError(nil), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ToDomainError(tt.err)
			require.NotNil(t, de)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.status, de.HTTPStatus)
			assert.True(t, HasCode(tt.err, tt.code))
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "task not found", NewNotFound("task", nil).Error())
}

func TestPersistenceErrorHidesCause(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	de := ToDomainError(NewPersistenceError(cause))

	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorIs(t, de, cause)
}

func TestToDomainErrorWrapsUnknownErrors(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	de := ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
}

func TestToDomainErrorUnwrapsWrapped(t *testing.T) {
	wrapped := fmt.Errorf("update task: %w", NewNotFound("task", nil))

	de := ToDomainError(wrapped)
	assert.Equal(t, CodeNotFound, de.Code)
	assert.False(t, HasCode(wrapped, CodeConflict))
}
