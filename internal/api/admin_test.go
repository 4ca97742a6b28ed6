package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidvault/internal/domain"
)

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	adminToken, adminID := s.newUser("boss")
	sellerToken, sellerID := s.newUser("seller")
	buyerToken, buyerID := s.newUser("buyer")
	require.NoError(t, s.db.Model(&domain.User{}).Where("id = ?", adminID).Update("role", domain.RoleAdmin).Error)

	paid := s.uploadVideo(sellerToken, map[string]string{"title": "Paid", "visibility": "public", "is_paid_unlock": "true", "price": "2.50"}, clip)
	s.uploadVideo(sellerToken, map[string]string{"title": "Free"}, clip)
	require.Equal(t, http.StatusOK, s.webhook("payment_intent.succeeded", "pi_admin", ids(paid, buyerID)).Code)

	assert.Equal(t, http.StatusUnauthorized, s.get("/admin/users", "").Code)
	assert.Equal(t, http.StatusForbidden, s.get("/admin/users", buyerToken).Code)

	body := decode(t, s.get("/admin/users", adminToken))
	assert.EqualValues(t, 3, body["total"])
	counts := map[string]float64{}
	for _, u := range body["users"].([]any) {
		user := u.(map[string]any)
		counts[user["username"].(string)] = user["video_count"].(float64)
	}
	assert.Equal(t, map[string]float64{"boss": 0, "seller": 2, "buyer": 0}, counts)

	body = decode(t, s.get("/admin/unlocks", adminToken))
	assert.EqualValues(t, 1, body["total"])
	grant := body["unlocks"].([]any)[0].(map[string]any)
	assert.EqualValues(t, buyerID, grant["user_id"])
	assert.EqualValues(t, paid, grant["video_id"])
	assert.Equal(t, "pi_admin", grant["payment_reference"])

	body = decode(t, s.get(fmt.Sprintf("/admin/unlocks?user_id=%d", sellerID), adminToken))
	assert.EqualValues(t, 0, body["total"])
	body = decode(t, s.get(fmt.Sprintf("/admin/unlocks?video_id=%d", paid), adminToken))
	assert.EqualValues(t, 1, body["total"])
}
