package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"somahub/config"
	"somahub/internal/auth"
	"somahub/internal/database"
	"somahub/internal/domain"
	"somahub/internal/models"
	"somahub/internal/router"
	"somahub/pkg/cache"
	"somahub/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type env struct {
	engine *gin.Engine
	db     *gorm.DB
	stub   *payment.StubProvider
	cfg    *config.Config
}

type downRateSource struct{}

func (downRateSource) Rate(context.Context, string, string) (float64, error) {
	return 0, errors.New("rate source down")
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{}
	cfg.JWT = config.JWTConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessExpiry:  time.Hour,
		RefreshExpiry: time.Hour,
		Issuer:        "somahub",
	}
	cfg.Mpesa.CallbackBaseURL = "https://somahub.test"
	cfg.Payment.MinAmountCents = 100
	cfg.Rates.CacheTTL = time.Hour

	stub := &payment.StubProvider{}
	engine := router.Setup(cfg, db, router.Deps{
		Provider:   stub,
		RateSource: downRateSource{},
		RateCache:  cache.NewMemory(),
	})
	return &env{engine: engine, db: db, stub: stub, cfg: cfg}
}

func (e *env) newUser(t *testing.T, email string) (*models.User, string) {
	t.Helper()
	u := &models.User{Email: email, Username: email, Role: domain.RoleStudent}
	require.NoError(t, e.db.Create(u).Error)
	token, err := auth.GenerateAccessToken(&e.cfg.JWT, u.ID, u.Email, u.Role)
	require.NoError(t, err)
	return u, token
}

func (e *env) newCourse(t *testing.T, priceCents int64) *models.Course {
	t.Helper()
	course := &models.Course{
		Title:      "Intro to Distributed Systems",
		PriceCents: priceCents,
		Currency:   "KES",
		Published:  true,
		Sections: []models.Section{
			{Title: "Basics", Position: 0, Chapters: []models.Chapter{
				{Title: "Clocks", Position: 0},
				{Title: "Consensus", Position: 1},
			}},
		},
	}
	require.NoError(t, e.db.Create(course).Error)
	return course
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// initiate runs a paid initiation and returns the transaction and its
// callback token slug.
func (e *env) initiate(t *testing.T, token string, courseID uint) (*models.Transaction, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/payments/initiate", token, gin.H{
		"course_id": courseID,
		"phone":     "0712345678",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var tx models.Transaction
	require.NoError(t, e.db.Order("id DESC").First(&tx).Error)
	var cbToken models.CallbackToken
	require.NoError(t, e.db.Where("transaction_id = ?", tx.ID).First(&cbToken).Error)
	return &tx, cbToken.Token
}

func callbackBody(checkoutID string, resultCode int, receipt string) gin.H {
	cb := gin.H{
		"MerchantRequestID": "29115-34620561-1",
		"CheckoutRequestID": checkoutID,
		"ResultCode":        resultCode,
		"ResultDesc":        "desc",
	}
	if resultCode == 0 {
		items := []gin.H{{"Name": "Amount", "Value": 500.0}}
		if receipt != "" {
			items = append(items, gin.H{"Name": "MpesaReceiptNumber", "Value": receipt})
		}
		cb["CallbackMetadata"] = gin.H{"Item": items}
	}
	return gin.H{"Body": gin.H{"stkCallback": cb}}
}

func (e *env) postCallback(t *testing.T, slug string, body gin.H) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/webhooks/mpesa/"+slug, "", body)
}

func (e *env) countProgress(t *testing.T, userID, courseID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Progress{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).Count(&n).Error)
	return n
}

func (e *env) countEnrollments(t *testing.T, userID, courseID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).Count(&n).Error)
	return n
}

func TestFreeCourseSettlesImmediately(t *testing.T) {
	e := newEnv(t)
	user, token := e.newUser(t, "free@somahub.test")
	course := e.newCourse(t, 0)

	w := e.do(t, http.MethodPost, "/api/v1/payments/initiate", token, gin.H{"course_id": course.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var tx models.Transaction
	require.NoError(t, e.db.Order("id DESC").First(&tx).Error)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
	assert.Equal(t, domain.ProviderFree, tx.Provider)
	assert.Zero(t, tx.AmountCents)
	assert.Empty(t, e.stub.Last.Phone, "provider never called for a free course")

	assert.Equal(t, int64(1), e.countEnrollments(t, user.ID, course.ID))
	assert.Equal(t, int64(1), e.countProgress(t, user.ID, course.ID))

	var p models.Progress
	require.NoError(t, e.db.Where("user_id = ?", user.ID).First(&p).Error)
	sections, err := p.SectionList()
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Len(t, sections[0].Chapters, 2)
	assert.Zero(t, p.OverallProgress)
}

func TestInitiateRejectsInvalidPhoneBeforePersisting(t *testing.T) {
	e := newEnv(t)
	_, token := e.newUser(t, "phone@somahub.test")
	course := e.newCourse(t, 50000)

	w := e.do(t, http.MethodPost, "/api/v1/payments/initiate", token, gin.H{
		"course_id": course.ID,
		"phone":     "071234567", // 8-digit national part
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var n int64
	require.NoError(t, e.db.Model(&models.Transaction{}).Count(&n).Error)
	assert.Zero(t, n, "nothing persisted on validation failure")
}

func TestInitiateCreatesPendingWithProviderRefs(t *testing.T) {
	e := newEnv(t)
	_, token := e.newUser(t, "init@somahub.test")
	course := e.newCourse(t, 50000)

	tx, slug := e.initiate(t, token, course.ID)

	assert.Equal(t, domain.TxStatusPending, tx.Status)
	assert.Equal(t, "254712345678", tx.PhoneNumber)
	assert.NotEmpty(t, tx.CheckoutRequestID)
	assert.NotEmpty(t, tx.MerchantRequestID)
	assert.NotEmpty(t, slug)
	assert.Equal(t, int64(500), e.stub.Last.Amount, "whole KES sent to provider")
	assert.Contains(t, e.stub.Last.CallbackURL, slug)
}

func TestInitiateRoundsSubShillingUpForProvider(t *testing.T) {
	e := newEnv(t)
	_, token := e.newUser(t, "cents@somahub.test")
	course := e.newCourse(t, 50050)

	tx, _ := e.initiate(t, token, course.ID)

	assert.Equal(t, int64(50050), tx.AmountCents, "transaction keeps the exact cent amount")
	assert.Equal(t, int64(501), e.stub.Last.Amount, "partial shilling charged up, never dropped")
}

func TestInitiateProviderFailureLeavesTransactionPending(t *testing.T) {
	e := newEnv(t)
	_, token := e.newUser(t, "down@somahub.test")
	course := e.newCourse(t, 50000)
	e.stub.Err = errors.New("provider unreachable")

	w := e.do(t, http.MethodPost, "/api/v1/payments/initiate", token, gin.H{
		"course_id": course.ID,
		"phone":     "0712345678",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var tx models.Transaction
	require.NoError(t, e.db.Order("id DESC").First(&tx).Error)
	assert.Equal(t, domain.TxStatusPending, tx.Status, "pending row kept for reconciliation")
	assert.Empty(t, tx.CheckoutRequestID)
}

func TestCallbackSuccessCompletesAndEnrolls(t *testing.T) {
	e := newEnv(t)
	user, token := e.newUser(t, "success@somahub.test")
	course := e.newCourse(t, 50000)
	tx, slug := e.initiate(t, token, course.ID)

	w := e.postCallback(t, slug, callbackBody(tx.CheckoutRequestID, 0, "RCP12345"))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := gormFirstTx(e.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, got.Status)
	assert.Equal(t, "RCP12345", got.MpesaReceiptNumber)
	assert.NotNil(t, got.CompletedAt)

	assert.Equal(t, int64(1), e.countEnrollments(t, user.ID, course.ID))
	assert.Equal(t, int64(1), e.countProgress(t, user.ID, course.ID))
}

func TestCallbackSuccessWithoutReceiptIsRejected(t *testing.T) {
	e := newEnv(t)
	_, token := e.newUser(t, "noreceipt@somahub.test")
	course := e.newCourse(t, 50000)
	tx, slug := e.initiate(t, token, course.ID)

	w := e.postCallback(t, slug, callbackBody(tx.CheckoutRequestID, 0, ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	got, err := gormFirstTx(e.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, got.Status, "fail closed, provider will retry")
}

func TestDuplicateSuccessCallbackIsAcknowledgedOnce(t *testing.T) {
	e := newEnv(t)
	user, token := e.newUser(t, "dup@somahub.test")
	course := e.newCourse(t, 50000)
	tx, slug := e.initiate(t, token, course.ID)
	body := callbackBody(tx.CheckoutRequestID, 0, "RCP12345")

	first := e.postCallback(t, slug, body)
	require.Equal(t, http.StatusOK, first.Code)
	second := e.postCallback(t, slug, body)
	assert.Equal(t, http.StatusOK, second.Code, "redelivery acknowledged")

	got, err := gormFirstTx(e.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, got.Status)
	assert.Equal(t, "RCP12345", got.MpesaReceiptNumber)

	assert.Equal(t, int64(1), e.countEnrollments(t, user.ID, course.ID), "side effects ran once")
	assert.Equal(t, int64(1), e.countProgress(t, user.ID, course.ID))
}

func TestCallbackUserCancelledFailsTransaction(t *testing.T) {
	e := newEnv(t)
	user, token := e.newUser(t, "cancel@somahub.test")
	course := e.newCourse(t, 50000)
	tx, slug := e.initiate(t, token, course.ID)

	w := e.postCallback(t, slug, callbackBody(tx.CheckoutRequestID, 1032, ""))
	assert.Equal(t, http.StatusOK, w.Code)

	got, err := gormFirstTx(e.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, got.Status)
	assert.Equal(t, domain.FailReasonUserCancelled, got.FailReason)
	assert.Zero(t, e.countEnrollments(t, user.ID, course.ID))
}

func TestCallbackInsufficientFundsReturnsClientError(t *testing.T) {
	e := newEnv(t)
	_, token := e.newUser(t, "broke@somahub.test")
	course := e.newCourse(t, 50000)
	tx, slug := e.initiate(t, token, course.ID)

	w := e.postCallback(t, slug, callbackBody(tx.CheckoutRequestID, 1, ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	got, err := gormFirstTx(e.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, got.Status)
	assert.Equal(t, domain.FailReasonInsufficientFunds, got.FailReason)
}

func TestFailureCallbackAfterSuccessDoesNotRegress(t *testing.T) {
	e := newEnv(t)
	_, token := e.newUser(t, "regress@somahub.test")
	course := e.newCourse(t, 50000)
	tx, slug := e.initiate(t, token, course.ID)

	require.Equal(t, http.StatusOK,
		e.postCallback(t, slug, callbackBody(tx.CheckoutRequestID, 0, "RCP1")).Code)
	w := e.postCallback(t, slug, callbackBody(tx.CheckoutRequestID, 1032, ""))
	assert.Equal(t, http.StatusOK, w.Code)

	got, err := gormFirstTx(e.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, got.Status, "terminal status never regresses")
}

func TestCallbackUnknownTokenRejected(t *testing.T) {
	e := newEnv(t)
	w := e.postCallback(t, "deadbeef", callbackBody("ws_CO_x", 0, "RCP1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallbackMalformedEnvelopeRejected(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/webhooks/mpesa/deadbeef", "", gin.H{"Body": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackBeforeProviderRefsVisibleIsRejected(t *testing.T) {
	e := newEnv(t)
	_, _ = e.newUser(t, "race@somahub.test")
	course := e.newCourse(t, 50000)

	// Transaction persisted but the provider correlation pair not yet written:
	// the callback raced the initiator's update.
	tx := &models.Transaction{
		Reference: "soma-race-1", UserID: 1, CourseID: course.ID,
		AmountCents: 50000, Currency: "KES",
		Provider: domain.ProviderMpesa, Status: domain.TxStatusPending,
	}
	require.NoError(t, e.db.Create(tx).Error)
	require.NoError(t, e.db.Create(&models.CallbackToken{Token: "racetoken", TransactionID: tx.ID}).Error)

	w := e.postCallback(t, "racetoken", callbackBody("ws_CO_unseen", 0, "RCP1"))
	assert.Equal(t, http.StatusNotFound, w.Code, "rejected so the provider redelivers")

	got, err := gormFirstTx(e.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, got.Status)
}

func TestStatusPolling(t *testing.T) {
	e := newEnv(t)
	_, token := e.newUser(t, "poll@somahub.test")
	course := e.newCourse(t, 50000)
	tx, slug := e.initiate(t, token, course.ID)

	w := e.do(t, http.MethodGet, "/api/v1/payments/"+tx.Reference, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), domain.TxStatusPending)

	require.Equal(t, http.StatusOK,
		e.postCallback(t, slug, callbackBody(tx.CheckoutRequestID, 0, "RCP9")).Code)

	w = e.do(t, http.MethodGet, "/api/v1/payments/"+tx.Reference, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), domain.TxStatusCompleted)
}

func gormFirstTx(db *gorm.DB, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := db.First(&tx, id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}
