package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidvault/internal/domain"
)

func TestSignup(t *testing.T) {
	s := newTestServer(t)

	w := s.sendJSON(http.MethodPost, "/auth/signup", gin.H{"username": "alice", "email": "alice@example.com", "password": password}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var user domain.User
	require.NoError(t, s.db.Where("username = ?", "alice").First(&user).Error)
	assert.NotEqual(t, password, user.PasswordHash)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.NotContains(t, w.Body.String(), user.PasswordHash)

	tests := []struct {
		name string
		body gin.H
		code int
	}{
		{"duplicate username", gin.H{"username": "alice", "email": "other@example.com", "password": password}, http.StatusConflict},
		{"duplicate email", gin.H{"username": "other", "email": "alice@example.com", "password": password}, http.StatusConflict},
		{"duplicate username other case", gin.H{"username": "ALICE", "email": "x@example.com", "password": password}, http.StatusConflict},
		{"missing password", gin.H{"username": "bob", "email": "bob@example.com"}, http.StatusBadRequest},
		{"missing email", gin.H{"username": "bob", "password": password}, http.StatusBadRequest},
		{"bad email", gin.H{"username": "bob", "email": "bob", "password": password}, http.StatusBadRequest},
		{"short password", gin.H{"username": "bob", "email": "bob@example.com", "password": "short"}, http.StatusBadRequest},
		{"bad username", gin.H{"username": "b o b", "email": "bob@example.com", "password": password}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.sendJSON(http.MethodPost, "/auth/signup", tt.body, "")
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}

	var n int64
	require.NoError(t, s.db.Model(&domain.User{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	s.newUser("carol")

	for _, identifier := range []string{"carol", "carol@example.com", "CAROL"} {
		w := s.sendJSON(http.MethodPost, "/auth/login", gin.H{"identifier": identifier, "password": password}, "")
		require.Equal(t, http.StatusOK, w.Code, identifier)
		assert.NotEmpty(t, decode(t, w)["access_token"])
	}

	w := s.sendJSON(http.MethodPost, "/auth/login", gin.H{"identifier": "carol", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.sendJSON(http.MethodPost, "/auth/login", gin.H{"identifier": "nobody", "password": password}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.sendJSON(http.MethodPost, "/auth/login", gin.H{"identifier": "carol"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtected(t *testing.T) {
	s := newTestServer(t)
	token, id := s.newUser("dave")

	w := s.get("/auth/protected", token)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)["logged_in_as"].(map[string]any)
	assert.Equal(t, "dave", me["username"])
	assert.EqualValues(t, id, me["id"])

	assert.Equal(t, http.StatusUnauthorized, s.get("/auth/protected", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.get("/auth/protected", "not-a-token").Code)
}
