// Package billing turns payment provider events into unlock grants
// and wraps the payment and bank-link providers.
package billing

import (
	"context" // Context for database calls
	"errors"  // Sentinel errors
	"fmt"     // Error wrapping
	"strconv" // Metadata parsing

	"vidvault/internal/access" // Grant checker type
	"vidvault/internal/domain" // Domain models

	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
	"gorm.io/gorm/clause"        // ON CONFLICT
)

// Event types the reconciler acts on
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Webhook errors
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownReference = errors.New("event references an unknown user or video")
)

// Outcome reports what a delivered event did
type Outcome string

// Outcomes
const (
	OutcomeUnlocked         Outcome = "unlocked"          // A new grant was written
	OutcomeAlreadyProcessed Outcome = "already_processed" // A grant already existed
	OutcomePaymentFailed    Outcome = "payment_failed"    // Failure observed, nothing written
	OutcomeIgnored          Outcome = "ignored"           // Event type not handled
)

// Event is a verified provider event
type Event struct {
	ID              string            // Provider event id
	Type            string            // e.g. payment_intent.succeeded
	PaymentIntentID string            // Provider payment reference
	Metadata        map[string]string // Payment intent metadata
	FailureMessage  string            // Last payment error, for failed payments
}

// EventVerifier authenticates and decodes a raw webhook delivery
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (*Event, error)
}

// Reconciler grants unlocks for successful payments, once per (user, video)
type Reconciler struct {
	db       *gorm.DB
	verifier EventVerifier
}

// NewReconciler creates a Reconciler
func NewReconciler(db *gorm.DB, verifier EventVerifier) *Reconciler {
	return &Reconciler{db: db, verifier: verifier}
}

// Reconcile verifies a webhook delivery and applies it
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, signatureHeader string) (Outcome, *Event, error) {
	event, err := r.verifier.Verify(payload, signatureHeader)
	if err != nil {
		return "", nil, err
	}
	outcome, err := r.Apply(ctx, event)
	return outcome, event, err
}

// Apply acts on an already verified event
func (r *Reconciler) Apply(ctx context.Context, event *Event) (Outcome, error) {
	log := logrus.WithFields(logrus.Fields{
		"event_id":       event.ID,              // Provider event id
		"event_type":     event.Type,            // Provider event type
		"payment_intent": event.PaymentIntentID, // Payment reference
	})
	switch event.Type {
	case EventPaymentSucceeded:
		return r.unlock(ctx, event, log)
	case EventPaymentFailed:
		reason := event.FailureMessage
		if reason == "" {
			reason = "Unknown"
		}
		log.WithField("reason", reason).Warn("Payment failed")
		return OutcomePaymentFailed, nil
	default:
		log.Info("Unhandled payment event type")
		return OutcomeIgnored, nil
	}
}

// unlock writes the grant for a succeeded payment
func (r *Reconciler) unlock(ctx context.Context, event *Event, log *logrus.Entry) (Outcome, error) {
	videoID, userID, err := referencedIDs(event)
	if err != nil {
		log.WithField("error", err.Error()).Error("Invalid payment metadata")
		return "", err
	}
	log = log.WithFields(logrus.Fields{"user_id": userID, "video_id": videoID})
	db := r.db.WithContext(ctx)

	// Provider retries of the same payment
	var existing int64
	if err := db.Model(&domain.UnlockGrant{}).
		Where("user_id = ? AND video_id = ? AND payment_reference = ?", userID, videoID, event.PaymentIntentID).
		Count(&existing).Error; err != nil {
		return "", fmt.Errorf("look up grant: %w", err)
	}
	if existing > 0 {
		log.Info("Unlock already recorded, webhook handled")
		return OutcomeAlreadyProcessed, nil
	}

	if err := mustExist(db, &domain.User{}, userID); err != nil {
		log.WithField("error", err.Error()).Error("User not found for payment")
		return "", err
	}
	if err := mustExist(db, &domain.Video{}, videoID); err != nil {
		log.WithField("error", err.Error()).Error("Video not found for payment")
		return "", err
	}

	grant := domain.UnlockGrant{UserID: userID, VideoID: videoID, PaymentReference: event.PaymentIntentID}
	// The unique (user_id, video_id) index settles concurrent deliveries
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
	if res.Error != nil {
		log.WithField("error", res.Error.Error()).Error("Failed to save unlock")
		return "", fmt.Errorf("save grant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.Info("Unlock written by a concurrent delivery, webhook handled")
		return OutcomeAlreadyProcessed, nil
	}
	log.WithField("grant_id", grant.ID).Info("Video unlocked")
	return OutcomeUnlocked, nil
}

// HasUnlock reports whether userID holds a grant for videoID
func (r *Reconciler) HasUnlock(ctx context.Context, userID, videoID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.UnlockGrant{}).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("look up grant: %w", err)
	}
	return count > 0, nil
}

// Checker adapts HasUnlock for the access package
func (r *Reconciler) Checker(ctx context.Context) access.GrantChecker {
	return func(userID, videoID uint) (bool, error) {
		return r.HasUnlock(ctx, userID, videoID)
	}
}

// referencedIDs reads video_id and user_id from the event metadata
func referencedIDs(event *Event) (videoID, userID uint, err error) {
	rawVideo, rawUser := event.Metadata["video_id"], event.Metadata["user_id"]
	if rawVideo == "" || rawUser == "" {
		return 0, 0, fmt.Errorf("%w: missing video_id or user_id", ErrMalformedEvent)
	}
	if event.PaymentIntentID == "" {
		return 0, 0, fmt.Errorf("%w: missing payment intent id", ErrMalformedEvent)
	}
	v, err := strconv.ParseUint(rawVideo, 10, 64)
	if err != nil || v == 0 {
		return 0, 0, fmt.Errorf("%w: invalid video_id %q", ErrMalformedEvent, rawVideo)
	}
	u, err := strconv.ParseUint(rawUser, 10, 64)
	if err != nil || u == 0 {
		return 0, 0, fmt.Errorf("%w: invalid user_id %q", ErrMalformedEvent, rawUser)
	}
	return uint(v), uint(u), nil
}

// mustExist returns ErrUnknownReference when no row has the id
func mustExist(db *gorm.DB, model any, id uint) error {
	err := db.Select("id").First(model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %T %d", ErrUnknownReference, model, id)
	}
	return err
}
