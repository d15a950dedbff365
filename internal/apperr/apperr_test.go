package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindInvalidState, http.StatusBadRequest},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindAccessDenied, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindStorage, http.StatusInternalServerError},
		{KindUnexpected, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("approve: %w", Storage("update milestone", base))

	assert.Equal(t, KindStorage, KindOf(err))
	assert.True(t, Is(err, KindStorage))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, KindUnexpected, KindOf(base))
}

func TestInvalidStateCarriesStatus(t *testing.T) {
	err := InvalidState("loan cannot be funded", "funded")

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "funded", e.CurrentStatus)
	assert.Contains(t, err.Error(), "invalid_state")
}
