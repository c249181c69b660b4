package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClaims struct{ UserID string }
type fakeUser struct{ Email string }

func TestWithAuthPassesClaimsThrough(t *testing.T) {
	authenticate := func(r *http.Request) (fakeClaims, fakeUser, int, error) {
		return fakeClaims{UserID: "u1"}, fakeUser{Email: "a@b.test"}, 0, nil
	}
	var gotClaims fakeClaims
	var gotUser fakeUser
	handler := WithAuth(authenticate, func(w http.ResponseWriter, r *http.Request, c fakeClaims, u fakeUser) {
		gotClaims, gotUser = c, u
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", gotClaims.UserID)
	assert.Equal(t, "a@b.test", gotUser.Email)
}

func TestWithAuthRejectsWithGivenStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"missing credential", http.StatusUnauthorized},
		{"rejected credential", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authenticate := func(r *http.Request) (fakeClaims, fakeUser, int, error) {
				return fakeClaims{}, fakeUser{}, tt.status, errors.New("nope")
			}
			called := false
			handler := WithAuth(authenticate, func(w http.ResponseWriter, r *http.Request, c fakeClaims, u fakeUser) {
				called = true
			})

			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, called)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "nope", body["message"])
		})
	}
}

func TestWithAdmin(t *testing.T) {
	t.Run("allows when check passes", func(t *testing.T) {
		handler := WithAdmin(func(r *http.Request) (int, error) { return 0, nil },
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects when check fails", func(t *testing.T) {
		handler := WithAdmin(func(r *http.Request) (int, error) {
			return http.StatusForbidden, errors.New("admin access required")
		}, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		})
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
