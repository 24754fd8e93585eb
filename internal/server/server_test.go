package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"summit-webhook/internal/client"
	"summit-webhook/internal/model"
	"summit-webhook/internal/repository"
	"summit-webhook/internal/service"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testSecret = "whsec_integration"

type testApp struct {
	server *Server
	db     *gorm.DB
}

func newTestApp(t *testing.T, secret string) *testApp {
	t.Helper()

	logger := zaptest.NewLogger(t)
	db, err := client.InitDBClient("sqlite:"+filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Create(&model.Account{Email: "a@x.com", Plan: model.PlanFree}).Error)

	fulfillment := service.NewFulfillmentService(logger, repository.NewAccountRepository(db), "pro", 5*time.Second)
	webhookService := service.NewWebhookService(
		logger,
		"dodo",
		"pro",
		service.NewVerifier(secret, secret != ""),
		fulfillment,
		repository.NewWebhookEventRepository(db),
		repository.NewFulfillmentFailureRepository(db),
		5*time.Second,
	)

	return &testApp{
		server: NewServer(logger, "summit-webhook", "64K", webhookService),
		db:     db,
	}
}

func (a *testApp) post(provider, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+provider, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("x-"+provider+"-signature", signature)
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (a *testApp) plan(t *testing.T, email string) string {
	t.Helper()
	var account model.Account
	require.NoError(t, a.db.Where("email = ?", email).First(&account).Error)
	return account.Plan
}

func (a *testApp) count(t *testing.T, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, a.db.Model(m).Count(&n).Error)
	return n
}

func paymentBody(email, paymentID string) string {
	return `{"type":"payment.succeeded","payment_id":"` + paymentID + `","customer":{"email":"` + email + `"},"amount":12.5,"currency":"usd","metadata":{"plan":"pro"}}`
}

func TestWebhook_UpgradesAccount(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := paymentBody("a@x.com", "pay_1")

	rec := app.post("dodo", body, service.Sign([]byte(body), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, "pro", app.plan(t, "a@x.com"))
	assert.EqualValues(t, 1, app.count(t, &model.AccountTransaction{}))

	var txn model.AccountTransaction
	require.NoError(t, app.db.First(&txn).Error)
	assert.Equal(t, "pay_1", txn.ProviderTransactionID)
	assert.Equal(t, "USD", txn.Currency)
	assert.Equal(t, "12.5", txn.Amount.String())
}

func TestWebhook_RedeliveryIsNoop(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := paymentBody("a@x.com", "pay_1")
	sig := service.Sign([]byte(body), testSecret)

	require.Equal(t, http.StatusOK, app.post("dodo", body, sig).Code)
	rec := app.post("dodo", body, sig)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"duplicate":true}`, rec.Body.String())
	assert.EqualValues(t, 1, app.count(t, &model.AccountTransaction{}))
	assert.EqualValues(t, 2, app.count(t, &model.WebhookEvent{}))

	events, err := repository.NewWebhookEventRepository(app.db).ListByTransactionID(context.Background(), "pay_1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.ElementsMatch(t,
		[]string{string(service.OutcomeFulfilled), string(service.OutcomeDuplicate)},
		[]string{events[0].Outcome, events[1].Outcome},
	)
}

func TestWebhook_ConcurrentRedelivery(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := paymentBody("a@x.com", "pay_1")
	sig := service.Sign([]byte(body), testSecret)

	const deliveries = 12
	bodies := make([]string, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := app.post("dodo", body, sig)
			assert.Equal(t, http.StatusOK, rec.Code)
			bodies[i] = rec.Body.String()
		}(i)
	}
	wg.Wait()

	first := 0
	for _, b := range bodies {
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(b), &resp))
		assert.NotContains(t, resp, "error")
		if resp["duplicate"] != true {
			first++
		}
	}
	assert.Equal(t, 1, first)
	assert.EqualValues(t, 1, app.count(t, &model.AccountTransaction{}))
	assert.Equal(t, "pro", app.plan(t, "a@x.com"))
}

func TestWebhook_UnknownAccount(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := paymentBody("nobody@x.com", "pay_2")

	rec := app.post("dodo", body, service.Sign([]byte(body), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.EqualValues(t, 0, app.count(t, &model.AccountTransaction{}))
	assert.EqualValues(t, 0, app.count(t, &model.FulfillmentFailure{}))
}

func TestWebhook_BadSignature(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := paymentBody("a@x.com", "pay_1")
	sig := service.Sign([]byte(paymentBody("a@x.com", "pay_9")), testSecret)

	rec := app.post("dodo", body, sig)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid signature"}`, rec.Body.String())
	assert.Equal(t, model.PlanFree, app.plan(t, "a@x.com"))
	assert.EqualValues(t, 0, app.count(t, &model.AccountTransaction{}))
	assert.EqualValues(t, 0, app.count(t, &model.WebhookEvent{}))
}

func TestWebhook_NonPaymentEvent(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := `{"type":"subscription.cancelled","customer":{"email":"a@x.com"}}`

	rec := app.post("dodo", body, service.Sign([]byte(body), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, model.PlanFree, app.plan(t, "a@x.com"))
	assert.EqualValues(t, 0, app.count(t, &model.AccountTransaction{}))
	assert.EqualValues(t, 1, app.count(t, &model.WebhookEvent{}))
}

func TestWebhook_UnknownProvider(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := paymentBody("a@x.com", "pay_1")

	rec := app.post("stripe", body, service.Sign([]byte(body), testSecret))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Unknown provider"}`, rec.Body.String())
}

func TestWebhook_DegradedMode(t *testing.T) {
	app := newTestApp(t, "")
	body := paymentBody("a@x.com", "pay_1")

	rec := app.post("dodo", body, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pro", app.plan(t, "a@x.com"))

	var event model.WebhookEvent
	require.NoError(t, app.db.First(&event).Error)
	assert.Equal(t, model.SignatureSkipped, event.SignatureStatus)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	health := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(health, req)
	assert.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok","service":"summit-webhook","signature_verification":"degraded","fulfillment":"enabled"}`, health.Body.String())
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := `{"pad":"` + strings.Repeat("x", 70*1024) + `"}`

	rec := app.post("dodo", body, service.Sign([]byte(body), testSecret))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.EqualValues(t, 0, app.count(t, &model.WebhookEvent{}))
}

func TestWebhook_ResponseCarriesRequestID(t *testing.T) {
	app := newTestApp(t, testSecret)
	body := `{"type":"ping"}`

	rec := app.post("dodo", body, service.Sign([]byte(body), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestWebhook_OlderPaymentKeepsPaidPlan(t *testing.T) {
	app := newTestApp(t, testSecret)

	body := paymentBody("a@x.com", "pay_1")
	require.Equal(t, http.StatusOK, app.post("dodo", body, service.Sign([]byte(body), testSecret)).Code)

	older := `{"type":"payment.succeeded","payment_id":"pay_0","customer":{"email":"a@x.com"},"amount":3,"metadata":{"plan":"basic"}}`
	rec := app.post("dodo", older, service.Sign([]byte(older), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, "pro", app.plan(t, "a@x.com"))

	var txn model.AccountTransaction
	require.NoError(t, app.db.Where("provider_transaction_id = ?", "pay_0").First(&txn).Error)
	assert.Equal(t, "basic", txn.PlanName)
}

func TestWebhook_MixedCaseStoredEmail(t *testing.T) {
	app := newTestApp(t, testSecret)
	require.NoError(t, app.db.Create(&model.Account{Email: "Bob@X.com", Plan: model.PlanFree}).Error)

	body := paymentBody("Bob@X.com", "pay_7")
	rec := app.post("dodo", body, service.Sign([]byte(body), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pro", app.plan(t, "bob@x.com"))
	assert.EqualValues(t, 1, app.count(t, &model.AccountTransaction{}))
}
