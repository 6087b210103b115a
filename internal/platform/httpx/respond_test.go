package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
)

func TestRespondErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("assign: %w", rbac.ErrForbidden), http.StatusForbidden},
		{errors.Join(shared.ErrStore, errors.New("dial tcp")), http.StatusServiceUnavailable},
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: role", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: last admin", ErrConflict), http.StatusConflict},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
	}
}

func TestStoreErrorsAdvertiseRetry(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.ErrStore)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "store unavailable")
}
