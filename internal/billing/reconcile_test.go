package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"vidvault/internal/db/dbtest"
	"vidvault/internal/domain"
)

const testSecret = "whsec_test_secret"

// paymentEvent builds a Stripe style event payload
func paymentEvent(eventType, intentID string, metadata map[string]string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":          "evt_" + intentID,
		"object":      "event",
		"api_version": "2020-08-27",
		"type":        eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":       intentID,
				"object":   "payment_intent",
				"amount":   1999,
				"currency": "usd",
				"metadata": metadata,
			},
		},
	})
	return payload
}

func sign(t *testing.T, payload []byte) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

type fixture struct {
	db    *gorm.DB
	rec   *Reconciler
	buyer *domain.User
	video *domain.Video
}

func setup(t *testing.T) fixture {
	gdb := dbtest.Open(t)
	owner := dbtest.CreateUser(t, gdb, "owner")
	buyer := dbtest.CreateUser(t, gdb, "buyer")
	video := dbtest.CreateVideo(t, gdb, domain.Video{UserID: owner.ID, Visibility: domain.VisibilityPublic, IsPaidUnlock: true})
	return fixture{db: gdb, rec: NewReconciler(gdb, NewStripeVerifier(testSecret, false)), buyer: buyer, video: video}
}

func (f fixture) metadata() map[string]string {
	return map[string]string{"video_id": fmt.Sprint(f.video.ID), "user_id": fmt.Sprint(f.buyer.ID)}
}

func (f fixture) grants(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&domain.UnlockGrant{}).Count(&n).Error)
	return n
}

func TestReconcile_SucceededCreatesGrant(t *testing.T) {
	f := setup(t)
	payload := paymentEvent(EventPaymentSucceeded, "pi_1", f.metadata())

	outcome, event, err := f.rec.Reconcile(context.Background(), payload, sign(t, payload))

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
	assert.Equal(t, "pi_1", event.PaymentIntentID)

	var grant domain.UnlockGrant
	require.NoError(t, f.db.First(&grant).Error)
	assert.Equal(t, f.buyer.ID, grant.UserID)
	assert.Equal(t, f.video.ID, grant.VideoID)
	assert.Equal(t, "pi_1", grant.PaymentReference)

	ok, err := f.rec.HasUnlock(context.Background(), f.buyer.ID, f.video.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconcile_ReplayIsIdempotent(t *testing.T) {
	f := setup(t)
	payload := paymentEvent(EventPaymentSucceeded, "pi_replay", f.metadata())
	header := sign(t, payload)

	first, _, err := f.rec.Reconcile(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, first)

	for i := 0; i < 4; i++ {
		outcome, _, err := f.rec.Reconcile(context.Background(), payload, header)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyProcessed, outcome)
	}
	assert.Equal(t, int64(1), f.grants(t))
}

func TestReconcile_SecondPaymentForSamePair(t *testing.T) {
	f := setup(t)
	first := paymentEvent(EventPaymentSucceeded, "pi_a", f.metadata())
	second := paymentEvent(EventPaymentSucceeded, "pi_b", f.metadata())

	outcome, _, err := f.rec.Reconcile(context.Background(), first, sign(t, first))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)

	outcome, _, err = f.rec.Reconcile(context.Background(), second, sign(t, second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, int64(1), f.grants(t))
}

func TestReconcile_ConcurrentDeliveries(t *testing.T) {
	f := setup(t)
	const deliveries = 8

	outcomes := make([]Outcome, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct intents for the same pair so the pre-check cannot short circuit
			event := &Event{
				ID:              fmt.Sprintf("evt_%d", i),
				Type:            EventPaymentSucceeded,
				PaymentIntentID: fmt.Sprintf("pi_%d", i),
				Metadata:        f.metadata(),
			}
			outcomes[i], errs[i] = f.rec.Apply(context.Background(), event)
		}(i)
	}
	wg.Wait()

	unlocked := 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		if outcomes[i] == OutcomeUnlocked {
			unlocked++
		} else {
			assert.Equal(t, OutcomeAlreadyProcessed, outcomes[i])
		}
	}
	assert.Equal(t, 1, unlocked)
	assert.Equal(t, int64(1), f.grants(t))
}

func TestReconcile_MalformedMetadata(t *testing.T) {
	f := setup(t)
	tests := map[string]map[string]string{
		"empty":             {},
		"missing user":      {"video_id": fmt.Sprint(f.video.ID)},
		"non numeric video": {"video_id": "abc", "user_id": fmt.Sprint(f.buyer.ID)},
		"non numeric user":  {"video_id": fmt.Sprint(f.video.ID), "user_id": "1.5"},
		"negative video":    {"video_id": "-1", "user_id": fmt.Sprint(f.buyer.ID)},
	}
	for name, meta := range tests {
		t.Run(name, func(t *testing.T) {
			payload := paymentEvent(EventPaymentSucceeded, "pi_bad", meta)
			_, _, err := f.rec.Reconcile(context.Background(), payload, sign(t, payload))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
	assert.Zero(t, f.grants(t))
}

func TestReconcile_UnknownReferences(t *testing.T) {
	f := setup(t)

	missingUser := paymentEvent(EventPaymentSucceeded, "pi_u", map[string]string{"video_id": fmt.Sprint(f.video.ID), "user_id": "9999"})
	_, _, err := f.rec.Reconcile(context.Background(), missingUser, sign(t, missingUser))
	assert.ErrorIs(t, err, ErrUnknownReference)

	missingVideo := paymentEvent(EventPaymentSucceeded, "pi_v", map[string]string{"video_id": "9999", "user_id": fmt.Sprint(f.buyer.ID)})
	_, _, err = f.rec.Reconcile(context.Background(), missingVideo, sign(t, missingVideo))
	assert.ErrorIs(t, err, ErrUnknownReference)

	assert.Zero(t, f.grants(t))
}

func TestReconcile_InvalidSignature(t *testing.T) {
	f := setup(t)
	payload := paymentEvent(EventPaymentSucceeded, "pi_sig", f.metadata())

	_, _, err := f.rec.Reconcile(context.Background(), payload, "t=123,v1=bad_signature_value")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, _, err = f.rec.Reconcile(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Zero(t, f.grants(t))
}

func TestReconcile_FailedAndOtherEvents(t *testing.T) {
	f := setup(t)

	failed := paymentEvent(EventPaymentFailed, "pi_f", f.metadata())
	outcome, _, err := f.rec.Reconcile(context.Background(), failed, sign(t, failed))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaymentFailed, outcome)

	other := paymentEvent("charge.refunded", "ch_1", nil)
	outcome, _, err = f.rec.Reconcile(context.Background(), other, sign(t, other))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	assert.Zero(t, f.grants(t))
}

func TestReconcile_BypassAcceptsUnsignedEvents(t *testing.T) {
	f := setup(t)
	rec := NewReconciler(f.db, NewStripeVerifier("", true))
	payload := paymentEvent(EventPaymentSucceeded, "pi_mock", f.metadata())

	outcome, _, err := rec.Reconcile(context.Background(), payload, "dummy_sig_for_mock_bypass")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)

	_, _, err = rec.Reconcile(context.Background(), []byte("{not json"), "")
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestHasUnlock_NoGrant(t *testing.T) {
	f := setup(t)

	ok, err := f.rec.HasUnlock(context.Background(), f.buyer.ID, f.video.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	checker := f.rec.Checker(context.Background())
	ok, err = checker(f.buyer.ID, f.video.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
