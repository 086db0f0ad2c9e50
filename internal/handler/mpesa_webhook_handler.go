package handler

import (
	"log"
	"net/http"

	"somahub/internal/domain"
	"somahub/internal/metrics"
	"somahub/internal/repository"
	"somahub/internal/service"

	"github.com/gin-gonic/gin"
)

// stkCallbackEnvelope is the Daraja callback body. The provider does not sign
// callbacks; the single-use URL token is the authentication boundary, and
// every field below is treated as untrusted until validated.
type stkCallbackEnvelope struct {
	Body struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []callbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type callbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

func (cb *stkCallback) receiptNumber() string {
	if cb.CallbackMetadata == nil {
		return ""
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

type MpesaWebhookHandler struct {
	txRepo    *repository.TransactionRepository
	tokenRepo *repository.TokenRepository
	enrollSvc *service.EnrollmentService
}

func NewMpesaWebhookHandler(
	txRepo *repository.TransactionRepository,
	tokenRepo *repository.TokenRepository,
	enrollSvc *service.EnrollmentService,
) *MpesaWebhookHandler {
	return &MpesaWebhookHandler{txRepo: txRepo, tokenRepo: tokenRepo, enrollSvc: enrollSvc}
}

// Handle processes one callback delivery. The provider retries on non-2xx, so
// every rejection below is deliberate: reject while the data cannot be trusted
// or matched, acknowledge once the transaction is terminal. No step here ever
// leaves a transaction half-written.
func (h *MpesaWebhookHandler) Handle(c *gin.Context) {
	var envelope stkCallbackEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil || envelope.Body.StkCallback == nil {
		metrics.CallbacksReceivedTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed callback"})
		return
	}
	cb := envelope.Body.StkCallback

	// The URL token is the trust anchor. Unknown token: nothing is touched.
	token, err := h.tokenRepo.GetByToken(c.Param("token"))
	if err != nil {
		metrics.CallbacksReceivedTotal.WithLabelValues("unknown_token").Inc()
		log.Printf("[CALLBACK] unknown token from %s", c.ClientIP())
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown callback"})
		return
	}
	tx, err := h.txRepo.GetByID(token.TransactionID)
	if err != nil {
		metrics.CallbacksReceivedTotal.WithLabelValues("orphan_token").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown transaction"})
		return
	}

	// The callback can race the initiator's own write of the correlation
	// pair. An empty or mismatched CheckoutRequestID means the transaction is
	// not yet attributable; reject so the provider redelivers.
	if tx.CheckoutRequestID == "" || tx.CheckoutRequestID != cb.CheckoutRequestID {
		metrics.CallbacksReceivedTotal.WithLabelValues("unmatched").Inc()
		log.Printf("[CALLBACK] checkout id mismatch tx=%s got=%s", tx.Reference, cb.CheckoutRequestID)
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not yet known"})
		return
	}

	// Idempotency gate: a terminal transaction is acknowledged untouched, and
	// side effects are not re-run. Providers redeliver callbacks by design.
	if tx.IsTerminal() {
		metrics.CallbacksDuplicateTotal.Inc()
		log.Printf("[CALLBACK] duplicate delivery for %s (status=%s)", tx.Reference, tx.Status)
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	if cb.ResultCode != domain.MpesaResultSuccess {
		h.handleFailure(c, tx.ID, tx.Reference, cb)
		return
	}

	// Success without a receipt is not proof of payment. Fail closed and let
	// the provider retry with complete data.
	receipt := cb.receiptNumber()
	if receipt == "" {
		metrics.CallbacksReceivedTotal.WithLabelValues("missing_receipt").Inc()
		log.Printf("[CALLBACK] success without receipt for %s, rejecting", tx.Reference)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing receipt number"})
		return
	}

	won, err := h.txRepo.CompleteIfPending(tx.ID, receipt, cb.ResultDesc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if !won {
		// A concurrent delivery performed the transition; this one carries no
		// side effects.
		metrics.CallbacksDuplicateTotal.Inc()
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}
	metrics.CallbacksReceivedTotal.WithLabelValues("completed").Inc()
	metrics.PaymentsSettledTotal.WithLabelValues(domain.TxStatusCompleted).Inc()
	_ = h.tokenRepo.MarkUsed(token.ID)
	log.Printf("[CALLBACK] %s COMPLETED receipt=%s", tx.Reference, receipt)

	// The transaction is settled regardless of what happens below: a partial
	// enrollment failure is repaired by re-running the idempotent initializer.
	if tx.UserID != domain.GuestUserID {
		if err := h.enrollSvc.Initialize(tx.UserID, tx.CourseID, domain.EnrollmentSourceMpesa); err != nil {
			log.Printf("[CALLBACK] enrollment init failed for %s: %v", tx.Reference, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// handleFailure classifies the provider's failure code and fails the
// transaction. The response status is tuned per class: insufficient funds is
// answered with a client error, a user cancellation is simply accepted.
func (h *MpesaWebhookHandler) handleFailure(c *gin.Context, txID uint, ref string, cb *stkCallback) {
	reason := domain.FailReasonUnknown
	switch cb.ResultCode {
	case domain.MpesaResultInsufficientFunds:
		reason = domain.FailReasonInsufficientFunds
	case domain.MpesaResultUserCancelled:
		reason = domain.FailReasonUserCancelled
	}
	won, err := h.txRepo.FailIfPending(txID, reason, cb.ResultDesc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if won {
		metrics.CallbacksReceivedTotal.WithLabelValues("failed").Inc()
		metrics.PaymentsSettledTotal.WithLabelValues(domain.TxStatusFailed).Inc()
		log.Printf("[CALLBACK] %s FAILED code=%d reason=%s", ref, cb.ResultCode, reason)
	}
	if reason == domain.FailReasonInsufficientFunds {
		c.JSON(http.StatusBadRequest, gin.H{"ResultCode": cb.ResultCode, "ResultDesc": "insufficient funds"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}
