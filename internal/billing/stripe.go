package billing

import (
	"context"       // Context for provider calls
	"encoding/json" // Event decoding
	"errors"        // Error matching
	"fmt"           // Error wrapping
	"strings"       // Event type prefix

	"github.com/sirupsen/logrus"              // Logging library
	"github.com/stripe/stripe-go/v82"         // Stripe types
	"github.com/stripe/stripe-go/v82/client"  // Stripe API client
	"github.com/stripe/stripe-go/v82/webhook" // Signature verification
)

// StripeVerifier checks Stripe-Signature headers with the endpoint secret
type StripeVerifier struct {
	secret string
	bypass bool
}

// NewStripeVerifier creates a verifier. With bypass set every event is
// accepted unsigned and a warning is logged per delivery.
func NewStripeVerifier(secret string, bypass bool) *StripeVerifier {
	return &StripeVerifier{secret: secret, bypass: bypass}
}

// Verify authenticates payload and decodes it
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (*Event, error) {
	var event stripe.Event
	if v.bypass {
		logrus.Warn("Stripe webhook signature verification BYPASSED; never run this way in production")
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	} else {
		var err error
		event, err = webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			if isSignatureError(err) {
				logrus.WithField("error", err.Error()).Error("Stripe webhook signature check failed")
				return nil, ErrInvalidSignature
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}
	return fromStripeEvent(&event)
}

// isSignatureError reports whether err came from the signature check
func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// fromStripeEvent extracts the payment intent fields the reconciler needs
func fromStripeEvent(se *stripe.Event) (*Event, error) {
	if se.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	event := &Event{ID: se.ID, Type: string(se.Type)}
	if !strings.HasPrefix(event.Type, "payment_intent.") {
		return event, nil
	}
	if se.Data == nil || len(se.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing payment intent", ErrMalformedEvent)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(se.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	event.PaymentIntentID = pi.ID
	event.Metadata = pi.Metadata
	if pi.LastPaymentError != nil {
		event.FailureMessage = pi.LastPaymentError.Msg
	}
	return event, nil
}

// PaymentIntent is the provider side of a purchase
type PaymentIntent struct {
	ID           string // Provider id
	ClientSecret string // Handed to the browser to confirm the payment
	Status       string // e.g. succeeded, processing, requires_payment_method
}

// PaymentIntentRequest describes a purchase to create
type PaymentIntentRequest struct {
	Amount   int64             // Minor currency units
	Currency string            // ISO currency code
	Metadata map[string]string // Carries video_id and user_id back through the webhook
}

// PaymentProvider creates and looks up payment intents
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
}

// StripeProvider talks to the Stripe API
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider using the secret API key
func NewStripeProvider(apiKey string) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{api: api}
}

// CreatePaymentIntent creates an intent with automatic payment methods
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// GetPaymentIntent fetches an intent by id
func (p *StripeProvider) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}
