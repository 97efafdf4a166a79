package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.StatusInternalServerError, CodeInternal, "db failed")

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		assert.Equal(t, false, body["success"])
		_, ok := body["message"]
		assert.False(t, ok, "message must be omitted for internal errors")
	})

	t.Run("bad request includes message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "invalid input")

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		var body ErrorBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, ErrorBody{Error: "bad_request", Message: "invalid input"}, body)
	})
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Query string `json:"query"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"gold coin"}`))
	require.NoError(t, DecodeJSON(req, &v, 1024))
	assert.Equal(t, "gold coin", v.Query)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"x","extra":1}`))
	assert.Error(t, DecodeJSON(req, &v, 1024))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.EqualError(t, DecodeJSON(req, &v, 1024), "empty request body")
}
