package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/streamctl/internal/errors"
	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/hotparams"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/workspace"
)

func TestRespondWithError_DefaultMapsDomainErrors(t *testing.T) {
	ResetHTTPErrorResponder()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown application", fmt.Errorf("42: %w", jobregistry.ErrNotFound), http.StatusNotFound, apperrors.CodeNotFound},
		{"bad id", fmt.Errorf("%w: %q", jobregistry.ErrInvalidID, "a/b"), http.StatusBadRequest, apperrors.CodeBadRequest},
		{"local mode has no storage", &workspace.UnsupportedModeError{Mode: enums.ExecutionModeLocal}, http.StatusUnprocessableEntity, apperrors.CodeUnprocessable},
		{"malformed hot params", fmt.Errorf("app 7: %w", hotparams.ErrMalformedBlob), http.StatusUnprocessableEntity, apperrors.CodeUnprocessable},
		{"unknown state code", fmt.Errorf("state: %w", enums.ErrUnknownEnumValue), http.StatusUnprocessableEntity, apperrors.CodeUnprocessable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondWithError(rec, httptest.NewRequest(http.MethodGet, "/apps/42/resolution", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.err.Error(), body.Error.Message)
		})
	}
}

func TestSetHTTPErrorResponder(t *testing.T) {
	defer ResetHTTPErrorResponder()

	var got error
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/apps", nil), jobregistry.ErrNotFound)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, got, jobregistry.ErrNotFound)

	t.Run("nil restores the envelope", func(t *testing.T) {
		SetHTTPErrorResponder(nil)

		rec := httptest.NewRecorder()
		respondWithError(rec, httptest.NewRequest(http.MethodGet, "/apps/9", nil), fmt.Errorf("9: %w", jobregistry.ErrNotFound))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})
}
