package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCause  bool
	}{
		{
			name:       "invalid input",
			err:        NewValidationError("license code is empty"),
			wantStatus: http.StatusBadRequest,
			wantType:   "/errors/invalid-input",
		},
		{
			name:       "persistence",
			err:        NewStorageError("failed to write license record", errors.New("read-only file system")),
			wantStatus: http.StatusInternalServerError,
			wantType:   "/errors/persistence",
			wantCause:  true,
		},
		{
			name:       "corrupted",
			err:        NewCorruptedError("license record failed authentication", nil),
			wantStatus: http.StatusConflict,
			wantType:   "/errors/record-corrupted",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "/errors/internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd := ProblemFromError(tt.err, "/api/license/commit")
			assert.Equal(t, tt.wantStatus, pd.Status)
			assert.Equal(t, tt.wantType, pd.Type)
			assert.Equal(t, "/api/license/commit", pd.Instance)
			_, hasCause := pd.Extensions["cause"]
			assert.Equal(t, tt.wantCause, hasCause)
		})
	}
}

func TestProblemFromError_InternalHidesDetails(t *testing.T) {
	pd := ProblemFromError(errors.New("secret path /root/.auth"), "")
	assert.NotContains(t, pd.Detail, "/root/.auth")
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	pd := NewProblemDetails(http.StatusBadRequest, "/errors/invalid-input", "Invalid Input", "", "/x").
		WithExtension("trace_id", "abc").
		WithExtension("status", 999)

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "/errors/invalid-input", got["type"])
	assert.Equal(t, "Invalid Input", got["title"])
	assert.Equal(t, float64(400), got["status"], "standard fields win over extensions")
	assert.Equal(t, "abc", got["trace_id"])
	assert.Equal(t, "/x", got["instance"])
	_, hasDetail := got["detail"]
	assert.False(t, hasDetail)
}

func TestProblemDetails_Render(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/license/status", nil)

	pd := NewProblemDetails(http.StatusConflict, "/errors/record-corrupted", "License Record Corrupted", "", r.URL.Path)
	require.NoError(t, render.Render(w, r, pd))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, w.Body.String(), `"type":"/errors/record-corrupted"`)
}
