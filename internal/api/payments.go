package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"net/url"  // Redirect query encoding
	"strconv"  // String conversion

	"vidvault/internal/billing"    // Payments and unlock grants
	"vidvault/internal/domain"     // Importing domain models
	"vidvault/internal/middleware" // Requester identity

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// PaymentIntentRequest is the body of POST /create-payment-intent
type PaymentIntentRequest struct {
	VideoID uint `json:"video_id" binding:"required"` // Video to unlock
}

// CreatePaymentIntentHandler starts a purchase for a paid video.
// The grant is written later by the webhook, never here.
func CreatePaymentIntentHandler(db *gorm.DB, rec *billing.Reconciler, provider billing.PaymentProvider, currency string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		requester := middleware.CurrentRequester(c)
		var req PaymentIntentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing video_id"})
			return
		}
		video, err := loadVideo(db, req.VideoID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch video"})
			return
		}
		if video == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		if !video.IsPaidUnlock || !video.Price.Valid || video.Price.Decimal.LessThan(domain.MinUnlockPrice) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "This video is not available for purchase or price is not set."})
			return
		}
		// Private videos are only sold to callers who could see the page anyway
		if !video.IsPublic() && !requester.IsOwner(video) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		unlocked := requester.IsOwner(video)
		if !unlocked {
			if unlocked, err = rec.HasUnlock(ctx, requester.UserID, video.ID); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check unlock"})
				return
			}
		}
		if unlocked {
			c.JSON(http.StatusOK, gin.H{"msg": "Video already unlocked.", "video_id": video.ID})
			return
		}
		intent, err := provider.CreatePaymentIntent(ctx, billing.PaymentIntentRequest{
			Amount:   video.PriceMinorUnits(),
			Currency: currency,
			Metadata: map[string]string{
				"video_id":    strconv.FormatUint(uint64(video.ID), 10),
				"user_id":     strconv.FormatUint(uint64(requester.UserID), 10),
				"video_title": video.Title,
			},
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id":  requester.UserID, // Buyer
				"video_id": video.ID,         // Video being bought
				"error":    err.Error(),      // Provider error
			}).Error("Payment intent creation failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Payment provider error"})
			return
		}
		logrus.WithFields(logrus.Fields{
			"user_id":        requester.UserID, // Buyer
			"video_id":       video.ID,         // Video being bought
			"payment_intent": intent.ID,        // Provider reference
		}).Info("Payment intent created")
		c.JSON(http.StatusOK, gin.H{
			"client_secret": intent.ClientSecret,
			"video_id":      video.ID,
			"video_price":   video.Price.Decimal.StringFixed(2),
		})
	}
}

// PaymentCompleteHandler is the browser return URL after checkout.
// It only reports status; unlocking happens in the webhook.
func PaymentCompleteHandler(provider billing.PaymentProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		intentID := c.Query("payment_intent")
		if intentID == "" {
			redirectWithNotice(c, "Payment Intent ID missing.")
			return
		}
		intent, err := provider.GetPaymentIntent(c.Request.Context(), intentID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"payment_intent": intentID,
				"error":          err.Error(),
			}).Warn("Payment status lookup failed")
			redirectWithNotice(c, "Error verifying payment.")
			return
		}
		switch intent.Status {
		case "succeeded":
			redirectWithNotice(c, "Payment successful! Your video will be unlocked shortly.")
		case "processing":
			redirectWithNotice(c, "Payment is processing. Your video will unlock once it completes.")
		default:
			redirectWithNotice(c, "Payment failed or was cancelled. Please try again.")
		}
	}
}

// redirectWithNotice sends the browser home with a message to display
func redirectWithNotice(c *gin.Context, notice string) {
	c.Redirect(http.StatusFound, "/?notice="+url.QueryEscape(notice))
}

// HomeHandler is the landing endpoint, echoing any notice from a redirect
func HomeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"service": "vidvault"}
		if notice := c.Query("notice"); notice != "" {
			resp["notice"] = notice
		}
		c.JSON(http.StatusOK, resp)
	}
}

// CreateLinkTokenHandler issues a bank-link token for the caller
func CreateLinkTokenHandler(linker billing.BankLinker) gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := middleware.CurrentRequester(c)
		token, err := linker.CreateLinkToken(c.Request.Context(), requester.UserID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": requester.UserID,
				"error":   err.Error(),
			}).Error("Link token creation failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Bank link provider error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"link_token": token})
	}
}

// SetPaymentMethodRequest is the body of POST /set-payment-method
type SetPaymentMethodRequest struct {
	PublicToken string `json:"public_token"` // Token returned by the link flow
	AccountID   string `json:"account_id"`   // Optional selected account
}

// SetPaymentMethodHandler exchanges a link public token and stores the resulting payment source
func SetPaymentMethodHandler(db *gorm.DB, linker billing.BankLinker) gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := middleware.CurrentRequester(c)
		var req SetPaymentMethodRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.PublicToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing public_token"})
			return
		}
		source, err := linker.ExchangePublicToken(c.Request.Context(), requester.UserID, req.PublicToken, req.AccountID)
		if errors.Is(err, billing.ErrNoBankAccount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": requester.UserID,
				"error":   err.Error(),
			}).Error("Public token exchange failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Bank link provider error"})
			return
		}
		res := db.Model(&domain.User{}).Where("id = ?", requester.UserID).Update("payment_source_id", source)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save payment method"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		logrus.WithField("user_id", requester.UserID).Info("Payment method linked")
		c.JSON(http.StatusOK, gin.H{"status": "success", "payment_source_id": source})
	}
}

// StripeWebhookHandler verifies a provider delivery and reconciles it.
// A non-2xx answer makes the provider retry, so only failures worth retrying get a 500.
func StripeWebhookHandler(rec *billing.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
			return
		}
		outcome, event, err := rec.Reconcile(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
		case errors.Is(err, billing.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		case errors.Is(err, billing.ErrMalformedEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, billing.ErrUnknownReference):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			fields := logrus.Fields{"error": err.Error()}
			if event != nil {
				fields["event_id"] = event.ID
			}
			logrus.WithFields(fields).Error("Webhook processing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		}
	}
}
