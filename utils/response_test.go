package utils

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOKAndErr(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONOK(rec, map[string]interface{}{"success": true, "value": 7})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var ok map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, true, ok["success"])

	rec = httptest.NewRecorder()
	JSONErr(rec, http.StatusPaymentRequired, "message limit reached")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var errBody map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, false, errBody["success"])
	assert.Equal(t, "message limit reached", errBody["message"])
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Jane"}`))
		var out struct {
			Name string `json:"name"`
		}
		require.NoError(t, DecodeJSON(req, &out))
		assert.Equal(t, "Jane", out.Name)
	})

	t.Run("empty body is not an error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var out struct{}
		assert.NoError(t, DecodeJSON(req, &out))
	})

	t.Run("malformed body errors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{oops"))
		var out struct{}
		assert.Error(t, DecodeJSON(req, &out))
	})
}

func TestNullableHelpers(t *testing.T) {
	assert.Nil(t, Nullable("  "))
	assert.Equal(t, "x", Nullable(" x "))

	assert.Nil(t, NullString(sql.NullString{}))
	assert.Equal(t, "v", NullString(sql.NullString{String: "v", Valid: true}))

	assert.Nil(t, NullTime(sql.NullTime{}))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, at, NullTime(sql.NullTime{Time: at, Valid: true}))

	assert.Nil(t, NullableInt64(sql.NullInt64{}))
	assert.Equal(t, int64(9), NullableInt64(sql.NullInt64{Int64: 9, Valid: true}))
}
