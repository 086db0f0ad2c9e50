package handler

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"somahub/config"
	"somahub/internal/domain"
	"somahub/internal/metrics"
	"somahub/internal/middleware"
	"somahub/internal/models"
	"somahub/internal/repository"
	"somahub/internal/service"
	"somahub/pkg/payment"

	"github.com/gin-gonic/gin"
)

// Kenyan mobile numbers: 7XXXXXXXX or 1XXXXXXXX national part, optionally
// prefixed with 254, +254 or 0. "071234567" (8-digit national part) fails.
var kenyanPhoneRe = regexp.MustCompile(`^(?:\+?254|0)?([17]\d{8})$`)

// normalizePhone returns the provider's 254XXXXXXXXX form, or "" when the
// number is not a valid Kenyan mobile number.
func normalizePhone(raw string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	m := kenyanPhoneRe.FindStringSubmatch(cleaned)
	if m == nil {
		return ""
	}
	return "254" + m[1]
}

type PaymentHandler struct {
	cfg        *config.Config
	txRepo     *repository.TransactionRepository
	tokenRepo  *repository.TokenRepository
	courseRepo *repository.CourseRepository
	ratesSvc   *service.RatesService
	enrollSvc  *service.EnrollmentService
	provider   payment.Provider
}

func NewPaymentHandler(
	cfg *config.Config,
	txRepo *repository.TransactionRepository,
	tokenRepo *repository.TokenRepository,
	courseRepo *repository.CourseRepository,
	ratesSvc *service.RatesService,
	enrollSvc *service.EnrollmentService,
	provider payment.Provider,
) *PaymentHandler {
	return &PaymentHandler{
		cfg:        cfg,
		txRepo:     txRepo,
		tokenRepo:  tokenRepo,
		courseRepo: courseRepo,
		ratesSvc:   ratesSvc,
		enrollSvc:  enrollSvc,
		provider:   provider,
	}
}

// newReference generates the internal transaction identifier. Timestamp plus
// random suffix keeps it unique without a coordination point.
func newReference() string {
	return fmt.Sprintf("soma-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}

// wholeKES converts a cent amount to the whole-shilling units Daraja takes.
// Partial shillings round up: the charge may exceed the converted price by at
// most 99 cents, never fall short of it.
func wholeKES(amountCents int64) int64 {
	return (amountCents + 99) / 100
}

// newCallbackToken returns an unguessable single-use URL slug.
func newCallbackToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Initiate starts a course purchase. Free courses settle immediately without
// touching the provider; paid courses get a PENDING transaction and an STK
// push, and settle later via the webhook.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req struct {
		CourseID uint   `json:"course_id" binding:"required"`
		Phone    string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	course, err := h.courseRepo.GetByID(req.CourseID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}

	// Free enrollment: settled on the spot, never enters the webhook flow.
	if course.IsFree() {
		h.initiateFree(c, userID, course)
		return
	}

	// Fail-fast validation: nothing is persisted until the inputs are good.
	phone := normalizePhone(req.Phone)
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone must be a valid Kenyan mobile number"})
		return
	}
	amountCents := h.ratesSvc.Convert(c.Request.Context(), course.PriceCents, course.Currency)
	if amountCents < h.cfg.Payment.MinAmountCents {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount below provider minimum"})
		return
	}

	token, err := newCallbackToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	callbackURL := h.cfg.Mpesa.CallbackBaseURL + "/api/v1/webhooks/mpesa/" + token

	tx := &models.Transaction{
		Reference:   newReference(),
		UserID:      userID,
		CourseID:    course.ID,
		AmountCents: amountCents,
		Currency:    domain.SettlementCurrency,
		Provider:    domain.ProviderMpesa,
		Status:      domain.TxStatusPending,
		PhoneNumber: phone,
	}
	if err := h.txRepo.Create(tx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction create failed"})
		return
	}
	if err := h.tokenRepo.Create(&models.CallbackToken{Token: token, TransactionID: tx.ID}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction create failed"})
		return
	}
	metrics.PaymentsInitiatedTotal.WithLabelValues(domain.ProviderMpesa).Inc()
	log.Printf("[PAY] initiate ref=%s course=%d user=%d amount=%d", tx.Reference, course.ID, userID, amountCents)

	resp, err := h.provider.InitiateSTKPush(c.Request.Context(), payment.STKRequest{
		Amount:           wholeKES(amountCents),
		Phone:            phone,
		CallbackURL:      callbackURL,
		AccountReference: tx.Reference,
		Description:      "Course: " + course.Title,
	})
	if err != nil {
		// The PENDING row stays put: the expiry sweeper or a late callback
		// reconciles it. Nothing else is mutated here.
		log.Printf("[PAY] stk push failed ref=%s: %v", tx.Reference, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment initiation failed, try again"})
		return
	}
	if err := h.txRepo.SetProviderRefs(tx.ID, resp.MerchantRequestID, resp.CheckoutRequestID); err != nil {
		log.Printf("[PAY] failed to store provider refs ref=%s: %v", tx.Reference, err)
	}
	c.JSON(http.StatusCreated, gin.H{
		"reference":           tx.Reference,
		"checkout_request_id": resp.CheckoutRequestID,
		"status":              tx.Status,
		"message":             resp.CustomerMessage,
	})
}

// initiateFree records a zero-amount transaction as settled and unlocks the
// course immediately.
func (h *PaymentHandler) initiateFree(c *gin.Context, userID uint, course *models.Course) {
	now := time.Now()
	tx := &models.Transaction{
		Reference:   newReference(),
		UserID:      userID,
		CourseID:    course.ID,
		AmountCents: 0,
		Currency:    domain.SettlementCurrency,
		Provider:    domain.ProviderFree,
		Status:      domain.TxStatusCompleted,
		ResultDesc:  "free enrollment",
		CompletedAt: &now,
	}
	if err := h.txRepo.Create(tx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction create failed"})
		return
	}
	metrics.PaymentsInitiatedTotal.WithLabelValues(domain.ProviderFree).Inc()
	metrics.PaymentsSettledTotal.WithLabelValues(domain.TxStatusCompleted).Inc()
	if userID != domain.GuestUserID {
		if err := h.enrollSvc.Initialize(userID, course.ID, domain.EnrollmentSourceFree); err != nil {
			log.Printf("[PAY] free enrollment init failed ref=%s: %v", tx.Reference, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{
		"reference": tx.Reference,
		"status":    tx.Status,
		"message":   "enrolled",
	})
}

// Status returns the stored transaction state for polling. Callback-driven
// failures are only observable here.
func (h *PaymentHandler) Status(c *gin.Context) {
	tx, err := h.txRepo.GetByReference(c.Param("reference"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	userID := middleware.GetUserID(c)
	if tx.UserID != domain.GuestUserID && tx.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reference":   tx.Reference,
		"status":      tx.Status,
		"fail_reason": tx.FailReason,
		"receipt":     tx.MpesaReceiptNumber,
		"amount":      tx.AmountCents,
		"currency":    tx.Currency,
	})
}
