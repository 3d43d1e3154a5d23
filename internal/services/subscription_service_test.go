package services

import (
	"context"
	"testing"
	"time"

	"kazka/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockSubscriptionRepo struct {
	mock.Mock
}

func (m *MockSubscriptionRepo) Create(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) GetLatestByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) Update(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepo) ListActiveEndingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type SubscriptionServiceTestSuite struct {
	suite.Suite
	repo *MockSubscriptionRepo
	svc  SubscriptionService
	ctx  context.Context
}

func (suite *SubscriptionServiceTestSuite) SetupTest() {
	suite.repo = new(MockSubscriptionRepo)
	suite.svc = NewSubscriptionService(suite.repo)
	suite.ctx = context.Background()
}

func TestSubscriptionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceTestSuite))
}

func (suite *SubscriptionServiceTestSuite) TestPurchase_UnknownPlan() {
	_, err := suite.svc.Purchase(suite.ctx, uuid.New(), "platinum")
	assert.ErrorIs(suite.T(), err, ErrPlanUnknown)
	suite.repo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything)
}

func (suite *SubscriptionServiceTestSuite) TestPurchase_CreatesPendingSubscription() {
	userID := uuid.New()
	suite.repo.On("Create", suite.ctx, mock.MatchedBy(func(sub *models.Subscription) bool {
		return sub.UserID == userID && sub.PlanID == "standard" && sub.Status == models.SubscriptionStatusPending
	})).Return(nil)

	sub, err := suite.svc.Purchase(suite.ctx, userID, "standard")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SubscriptionStatusPending, sub.Status)
	assert.Nil(suite.T(), sub.EndDate)
}

func (suite *SubscriptionServiceTestSuite) TestActivateOrRenew_PendingBecomesActive() {
	sub := &models.Subscription{
		ID:     uuid.New(),
		UserID: uuid.New(),
		PlanID: "mini",
		Status: models.SubscriptionStatusPending,
	}
	suite.repo.On("GetByID", suite.ctx, sub.ID).Return(sub, nil)
	suite.repo.On("Update", suite.ctx, sub).Return(nil)

	err := suite.svc.ActivateOrRenew(suite.ctx, sub.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SubscriptionStatusActive, sub.Status)
	assert.NotNil(suite.T(), sub.EndDate)
	assert.WithinDuration(suite.T(), time.Now().AddDate(0, 0, 30), *sub.EndDate, time.Minute)
	assert.Zero(suite.T(), sub.ExchangesUsed)
}

// Renewing before expiry extends from the current end date, so early renewal
// never burns remaining paid time.
func (suite *SubscriptionServiceTestSuite) TestActivateOrRenew_EarlyRenewalExtendsFromEndDate() {
	end := time.Now().AddDate(0, 0, 10)
	sub := &models.Subscription{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		PlanID:        "mini",
		Status:        models.SubscriptionStatusActive,
		EndDate:       &end,
		ExchangesUsed: 1,
	}
	suite.repo.On("GetByID", suite.ctx, sub.ID).Return(sub, nil)
	suite.repo.On("Update", suite.ctx, sub).Return(nil)

	err := suite.svc.ActivateOrRenew(suite.ctx, sub.ID)
	assert.NoError(suite.T(), err)
	assert.WithinDuration(suite.T(), end.AddDate(0, 0, 30), *sub.EndDate, time.Second)
	assert.Zero(suite.T(), sub.ExchangesUsed, "a paid cycle resets the exchange allowance")
}

func (suite *SubscriptionServiceTestSuite) TestActivateOrRenew_LapsedRenewalExtendsFromNow() {
	end := time.Now().AddDate(0, 0, -5)
	sub := &models.Subscription{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		PlanID:  "mini",
		Status:  models.SubscriptionStatusActive,
		EndDate: &end,
	}
	suite.repo.On("GetByID", suite.ctx, sub.ID).Return(sub, nil)
	suite.repo.On("Update", suite.ctx, sub).Return(nil)

	err := suite.svc.ActivateOrRenew(suite.ctx, sub.ID)
	assert.NoError(suite.T(), err)
	assert.WithinDuration(suite.T(), time.Now().AddDate(0, 0, 30), *sub.EndDate, time.Minute)
}

func (suite *SubscriptionServiceTestSuite) TestActivateOrRenew_ExpiredStartsFreshCycle() {
	end := time.Now().AddDate(0, 0, -40)
	sub := &models.Subscription{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		PlanID:  "family",
		Status:  models.SubscriptionStatusExpired,
		EndDate: &end,
	}
	suite.repo.On("GetByID", suite.ctx, sub.ID).Return(sub, nil)
	suite.repo.On("Update", suite.ctx, sub).Return(nil)

	err := suite.svc.ActivateOrRenew(suite.ctx, sub.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SubscriptionStatusActive, sub.Status)
	assert.WithinDuration(suite.T(), time.Now().AddDate(0, 0, 30), *sub.EndDate, time.Minute)
}

// Reads settle expiry lazily: an ACTIVE record past its end date is reported
// EXPIRED even if no sweep has run.
func (suite *SubscriptionServiceTestSuite) TestGetByID_LazyExpiry() {
	end := time.Now().Add(-time.Hour)
	sub := &models.Subscription{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		PlanID:  "mini",
		Status:  models.SubscriptionStatusActive,
		EndDate: &end,
	}
	suite.repo.On("GetByID", suite.ctx, sub.ID).Return(sub, nil)
	suite.repo.On("Update", suite.ctx, sub).Return(nil)

	got, err := suite.svc.GetByID(suite.ctx, sub.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SubscriptionStatusExpired, got.Status)
}

func (suite *SubscriptionServiceTestSuite) TestPause_RequiresActive() {
	sub := &models.Subscription{
		ID:     uuid.New(),
		PlanID: "mini",
		Status: models.SubscriptionStatusCancelled,
	}
	suite.repo.On("GetByID", suite.ctx, sub.ID).Return(sub, nil)

	err := suite.svc.Pause(suite.ctx, sub.ID)
	assert.ErrorIs(suite.T(), err, ErrSubscriptionNotActive)
}

func (suite *SubscriptionServiceTestSuite) TestResume_ExtendsEndDateByPausedDuration() {
	pausedAt := time.Now().Add(-48 * time.Hour)
	end := time.Now().AddDate(0, 0, 5)
	sub := &models.Subscription{
		ID:       uuid.New(),
		PlanID:   "mini",
		Status:   models.SubscriptionStatusPaused,
		PausedAt: &pausedAt,
		EndDate:  &end,
	}
	suite.repo.On("GetByID", suite.ctx, sub.ID).Return(sub, nil)
	suite.repo.On("Update", suite.ctx, sub).Return(nil)

	err := suite.svc.Resume(suite.ctx, sub.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SubscriptionStatusActive, sub.Status)
	assert.Nil(suite.T(), sub.PausedAt)
	assert.WithinDuration(suite.T(), end.Add(48*time.Hour), *sub.EndDate, time.Minute)
}

func (suite *SubscriptionServiceTestSuite) TestResume_RequiresPaused() {
	sub := &models.Subscription{
		ID:     uuid.New(),
		PlanID: "mini",
		Status: models.SubscriptionStatusActive,
	}
	suite.repo.On("GetByID", suite.ctx, sub.ID).Return(sub, nil)

	err := suite.svc.Resume(suite.ctx, sub.ID)
	assert.ErrorIs(suite.T(), err, ErrSubscriptionNotPaused)
}

func (suite *SubscriptionServiceTestSuite) TestGetAvailablePlans_ReturnsCopy() {
	plans := suite.svc.GetAvailablePlans()
	assert.Len(suite.T(), plans, 3)

	plans["mini"] = models.Plan{ID: "mutated"}
	assert.Equal(suite.T(), "mini", suite.svc.GetAvailablePlans()["mini"].ID)
}
