package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"vidvault/internal/billing"
	"vidvault/internal/db/dbtest"
	"vidvault/internal/domain"
	"vidvault/internal/storage"
)

const (
	jwtSecret     = "api-test-secret"
	webhookSecret = "whsec_api_test"
	password      = "password123"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakePayments records intents instead of calling Stripe
type fakePayments struct {
	mu       sync.Mutex
	requests []billing.PaymentIntentRequest
	status   string
	err      error
}

func (f *fakePayments) CreatePaymentIntent(_ context.Context, req billing.PaymentIntentRequest) (*billing.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	id := fmt.Sprintf("pi_test_%d", len(f.requests))
	return &billing.PaymentIntent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}, nil
}

func (f *fakePayments) GetPaymentIntent(_ context.Context, id string) (*billing.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &billing.PaymentIntent{ID: id, Status: f.status}, nil
}

// failingLinker fails every provider call
type failingLinker struct{}

func (failingLinker) CreateLinkToken(context.Context, uint) (string, error) {
	return "", errors.New("plaid unavailable")
}

func (failingLinker) ExchangePublicToken(context.Context, uint, string, string) (string, error) {
	return "", errors.New("plaid unavailable")
}

type testServer struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	payments *fakePayments
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, billing.SandboxLinker{})
}

func newTestServerWith(t *testing.T, linker billing.BankLinker) *testServer {
	t.Helper()
	gdb := dbtest.Open(t)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	payments := &fakePayments{status: "succeeded"}
	router := NewRouter(Deps{
		DB:             gdb,
		Store:          store,
		Reconciler:     billing.NewReconciler(gdb, billing.NewStripeVerifier(webhookSecret, false)),
		Payments:       payments,
		BankLinker:     linker,
		JWTSecret:      jwtSecret,
		Currency:       "usd",
		MaxUploadBytes: 1 << 20,
	})
	return &testServer{t: t, db: gdb, router: router, payments: payments}
}

func (s *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	return s.do(req, token)
}

func (s *testServer) sendJSON(method, path string, payload any, token string) *httptest.ResponseRecorder {
	body, err := json.Marshal(payload)
	require.NoError(s.t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, token)
}

// newUser signs up and logs in, returning the token and the user's id
func (s *testServer) newUser(username string) (string, uint) {
	s.t.Helper()
	w := s.sendJSON(http.MethodPost, "/auth/signup", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	}, "")
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	w = s.sendJSON(http.MethodPost, "/auth/login", gin.H{"identifier": username, "password": password}, "")
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var resp AuthResponse
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	var user domain.User
	require.NoError(s.t, s.db.Where("username = ?", username).First(&user).Error)
	return resp.AccessToken, user.ID
}

// upload posts a multipart form; an empty filename sends no file part
func (s *testServer) upload(token string, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(s.t, err)
		_, err = part.Write(content)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/videos/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req, token)
}

// uploadVideo uploads and returns the new video id
func (s *testServer) uploadVideo(token string, fields map[string]string, content []byte) uint {
	s.t.Helper()
	w := s.upload(token, fields, "clip.mp4", content)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		VideoID uint `json:"video_id"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.VideoID
}

// webhook delivers a signed payment intent event
func (s *testServer) webhook(eventType, intentID string, metadata map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_" + intentID,
		"object":      "event",
		"api_version": "2020-08-27",
		"type":        eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":       intentID,
				"object":   "payment_intent",
				"metadata": metadata,
			},
		},
	})
	require.NoError(s.t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/stripe-webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return s.do(req, "")
}

func (s *testServer) grantCount() int64 {
	var n int64
	require.NoError(s.t, s.db.Model(&domain.UnlockGrant{}).Count(&n).Error)
	return n
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return b
}

func ids(videoID, userID uint) map[string]string {
	return map[string]string{"video_id": fmt.Sprint(videoID), "user_id": fmt.Sprint(userID)}
}
