package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kazka/internal/models"
	"kazka/internal/repositories"
	"kazka/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockIntentService struct {
	mock.Mock
}

func (m *MockIntentService) CreateIntent(ctx context.Context, req *services.CreateIntentRequest) (*models.PaymentIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *MockIntentService) GetStatus(ctx context.Context, invoiceID string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *MockIntentService) Apply(ctx context.Context, invoiceID string, status models.IntentStatus, source models.IntentSource) (*models.PaymentIntent, error) {
	args := m.Called(ctx, invoiceID, status, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *MockIntentService) ExpireStale(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateInvoice(ctx context.Context, req *services.CreateInvoiceRequest) (*services.CreateInvoiceResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CreateInvoiceResponse), args.Error(1)
}

func (m *MockGateway) GetInvoice(ctx context.Context, invoiceID string) (*services.InvoiceStatusResponse, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.InvoiceStatusResponse), args.Error(1)
}

func (m *MockGateway) VerifySignature(rawBody []byte, signature string) error {
	args := m.Called(rawBody, signature)
	return args.Error(0)
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueActivation(ctx context.Context, subscriptionID uuid.UUID) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *MockEnqueuer) EnqueueReceipt(ctx context.Context, invoiceID string) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

func (m *MockEnqueuer) EnqueueReconcile(ctx context.Context, invoiceID string) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

type MockWebhookCache struct {
	mock.Mock
}

func (m *MockWebhookCache) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookCache) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	args := m.Called(ctx, key, window)
	return args.Error(0)
}

func (m *MockWebhookCache) DeleteIntent(ctx context.Context, invoiceID string) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

type WebhookHandlersTestSuite struct {
	suite.Suite
	intentSvc *MockIntentService
	gateway   *MockGateway
	enqueuer  *MockEnqueuer
	cache     *MockWebhookCache
	handlers  *WebhookHandlers
	echo      *echo.Echo
}

func (suite *WebhookHandlersTestSuite) SetupTest() {
	suite.intentSvc = new(MockIntentService)
	suite.gateway = new(MockGateway)
	suite.enqueuer = new(MockEnqueuer)
	suite.cache = new(MockWebhookCache)
	suite.handlers = NewWebhookHandlers(suite.intentSvc, suite.gateway, suite.enqueuer, suite.cache)
	suite.echo = echo.New()
}

func (suite *WebhookHandlersTestSuite) allowTraffic() {
	suite.cache.On("IsRateLimited", mock.Anything, mock.Anything, webhookRateLimit, webhookRateWindow).Return(false, nil)
	suite.cache.On("IncrementRateLimit", mock.Anything, mock.Anything, webhookRateWindow).Return(nil)
}

func TestWebhookHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(WebhookHandlersTestSuite))
}

func (suite *WebhookHandlersTestSuite) deliver(body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	rec := httptest.NewRecorder()
	c := suite.echo.NewContext(req, rec)

	err := suite.handlers.PaymentWebhook(c)
	if err != nil {
		suite.echo.HTTPErrorHandler(err, c)
	}
	return rec
}

func (suite *WebhookHandlersTestSuite) TestMissingSignature() {
	suite.allowTraffic()

	rec := suite.deliver(`{"invoiceId":"inv_1","status":"PAID"}`, "")
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *WebhookHandlersTestSuite) TestRateLimitedDeliveryIsRejected() {
	suite.cache.On("IsRateLimited", mock.Anything, mock.Anything, webhookRateLimit, webhookRateWindow).Return(true, nil)

	rec := suite.deliver(`{"invoiceId":"inv_1","status":"PAID"}`, "sig")
	assert.Equal(suite.T(), http.StatusTooManyRequests, rec.Code)
	suite.gateway.AssertNotCalled(suite.T(), "VerifySignature", mock.Anything, mock.Anything)
	suite.intentSvc.AssertNotCalled(suite.T(), "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// The limiter fails open: a cache outage must not drop gateway callbacks.
func (suite *WebhookHandlersTestSuite) TestRateLimitOutageDoesNotBlockDelivery() {
	suite.cache.On("IsRateLimited", mock.Anything, mock.Anything, webhookRateLimit, webhookRateWindow).Return(false, assert.AnError)
	suite.cache.On("IncrementRateLimit", mock.Anything, mock.Anything, webhookRateWindow).Return(assert.AnError)
	suite.gateway.On("VerifySignature", mock.Anything, "sig").Return(nil)
	intent := &models.PaymentIntent{ID: "inv_1", Status: models.IntentStatusSuccess}
	suite.intentSvc.On("Apply", mock.Anything, "inv_1", models.IntentStatusSuccess, models.IntentSourceWebhook).Return(intent, nil)

	rec := suite.deliver(`{"invoiceId":"inv_1","status":"PAID"}`, "sig")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "processed")
}

func (suite *WebhookHandlersTestSuite) TestInvalidSignature() {
	suite.allowTraffic()
	suite.gateway.On("VerifySignature", mock.Anything, "bad").Return(services.ErrInvalidSignature)

	rec := suite.deliver(`{"invoiceId":"inv_1","status":"PAID"}`, "bad")
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
	suite.intentSvc.AssertNotCalled(suite.T(), "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *WebhookHandlersTestSuite) TestSuccessfulDelivery() {
	suite.allowTraffic()
	suite.gateway.On("VerifySignature", mock.Anything, "sig").Return(nil)
	intent := &models.PaymentIntent{ID: "inv_1", Status: models.IntentStatusSuccess}
	suite.intentSvc.On("Apply", mock.Anything, "inv_1", models.IntentStatusSuccess, models.IntentSourceWebhook).Return(intent, nil)

	rec := suite.deliver(`{"invoiceId":"inv_1","status":"PAID"}`, "sig")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "processed")
}

// An unknown invoice is acknowledged so the gateway stops redelivering.
func (suite *WebhookHandlersTestSuite) TestUnknownInvoiceIsAcked() {
	suite.allowTraffic()
	suite.gateway.On("VerifySignature", mock.Anything, "sig").Return(nil)
	suite.intentSvc.On("Apply", mock.Anything, "inv_ghost", models.IntentStatusSuccess, models.IntentSourceWebhook).Return(nil, repositories.ErrIntentNotFound)

	rec := suite.deliver(`{"invoiceId":"inv_ghost","status":"PAID"}`, "sig")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "ignored")
}

// Local processing failures still ack with 200; recovery happens through the
// reconcile queue, not gateway redelivery.
func (suite *WebhookHandlersTestSuite) TestDownstreamFailureStillAcks() {
	suite.allowTraffic()
	suite.gateway.On("VerifySignature", mock.Anything, "sig").Return(nil)
	suite.intentSvc.On("Apply", mock.Anything, "inv_1", models.IntentStatusSuccess, models.IntentSourceWebhook).Return(nil, assert.AnError)
	suite.enqueuer.On("EnqueueReconcile", mock.Anything, "inv_1").Return(nil)
	suite.cache.On("DeleteIntent", mock.Anything, "inv_1").Return(nil)

	rec := suite.deliver(`{"invoiceId":"inv_1","status":"PAID"}`, "sig")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "deferred")
	suite.enqueuer.AssertCalled(suite.T(), "EnqueueReconcile", mock.Anything, "inv_1")
	// a deferred event invalidates the cached snapshot so readers fall
	// through to the database until the reconcile settles it
	suite.cache.AssertCalled(suite.T(), "DeleteIntent", mock.Anything, "inv_1")
}

func (suite *WebhookHandlersTestSuite) TestUnknownStatusIsIgnored() {
	suite.allowTraffic()
	suite.gateway.On("VerifySignature", mock.Anything, "sig").Return(nil)

	rec := suite.deliver(`{"invoiceId":"inv_1","status":"SOMETHING_NEW"}`, "sig")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	suite.intentSvc.AssertNotCalled(suite.T(), "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *WebhookHandlersTestSuite) TestMalformedPayload() {
	suite.allowTraffic()
	suite.gateway.On("VerifySignature", mock.Anything, "sig").Return(nil)

	rec := suite.deliver(`{not json`, "sig")
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}
