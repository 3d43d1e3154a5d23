package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"kazka/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockRentalRepo struct {
	mock.Mock
}

func (m *MockRentalRepo) Create(ctx context.Context, rental *models.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}

func (m *MockRentalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rental), args.Error(1)
}

func (m *MockRentalRepo) Update(ctx context.Context, rental *models.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}

func (m *MockRentalRepo) CountOccupying(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockRentalRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Rental, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Rental), args.Error(1)
}

func (m *MockRentalRepo) ListActivePastDue(ctx context.Context, asOf time.Time, limit int) ([]*models.Rental, error) {
	args := m.Called(ctx, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Rental), args.Error(1)
}

func (m *MockRentalRepo) ListOverdue(ctx context.Context, limit int) ([]*models.Rental, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Rental), args.Error(1)
}

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Purchase(ctx context.Context, userID uuid.UUID, planID string) (*models.Subscription, error) {
	args := m.Called(ctx, userID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) ActivateOrRenew(ctx context.Context, subscriptionID uuid.UUID) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *MockSubscriptionService) GetByID(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) Cancel(ctx context.Context, subscriptionID uuid.UUID) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *MockSubscriptionService) Pause(ctx context.Context, subscriptionID uuid.UUID) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *MockSubscriptionService) Resume(ctx context.Context, subscriptionID uuid.UUID) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *MockSubscriptionService) RecordExchange(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionService) PlanFor(subscription *models.Subscription) (models.Plan, bool) {
	args := m.Called(subscription)
	return args.Get(0).(models.Plan), args.Bool(1)
}

func (m *MockSubscriptionService) GetAvailablePlans() map[string]models.Plan {
	args := m.Called()
	return args.Get(0).(map[string]models.Plan)
}

type RentalServiceTestSuite struct {
	suite.Suite
	rentalRepo *MockRentalRepo
	subSvc     *MockSubscriptionService
	svc        RentalService
	ctx        context.Context
	userID     uuid.UUID
	sub        *models.Subscription
	miniPlan   models.Plan
}

func (suite *RentalServiceTestSuite) SetupTest() {
	suite.rentalRepo = new(MockRentalRepo)
	suite.subSvc = new(MockSubscriptionService)
	suite.svc = NewRentalService(suite.rentalRepo, suite.subSvc)
	suite.ctx = context.Background()
	suite.userID = uuid.New()

	end := time.Now().AddDate(0, 0, 20)
	suite.sub = &models.Subscription{
		ID:      uuid.New(),
		UserID:  suite.userID,
		PlanID:  "mini",
		Status:  models.SubscriptionStatusActive,
		EndDate: &end,
	}
	suite.miniPlan = models.Plan{
		ID:                "mini",
		Amount:            19900,
		Currency:          "UAH",
		PeriodDays:        30,
		MaxBooks:          1,
		RentalPeriodDays:  14,
		ExchangesPerMonth: 1,
	}
}

func TestRentalServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RentalServiceTestSuite))
}

func (suite *RentalServiceTestSuite) TestRequestRental_Success() {
	suite.subSvc.On("GetForUser", suite.ctx, suite.userID).Return(suite.sub, nil)
	suite.subSvc.On("PlanFor", suite.sub).Return(suite.miniPlan, true)
	suite.rentalRepo.On("CountOccupying", suite.ctx, suite.userID).Return(0, nil)
	suite.rentalRepo.On("Create", suite.ctx, mock.MatchedBy(func(rental *models.Rental) bool {
		return rental.UserID == suite.userID && rental.Status == models.RentalStatusActive
	})).Return(nil)

	rental, err := suite.svc.RequestRental(suite.ctx, suite.userID, uuid.New())
	assert.NoError(suite.T(), err)
	assert.WithinDuration(suite.T(), time.Now().AddDate(0, 0, 14), rental.DueDate, time.Minute)
}

func (suite *RentalServiceTestSuite) TestRequestRental_RequiresActiveSubscription() {
	expired := *suite.sub
	expired.Status = models.SubscriptionStatusExpired
	suite.subSvc.On("GetForUser", suite.ctx, suite.userID).Return(&expired, nil)

	_, err := suite.svc.RequestRental(suite.ctx, suite.userID, uuid.New())
	assert.ErrorIs(suite.T(), err, ErrSubscriptionNotActive)
	suite.rentalRepo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything)
}

func (suite *RentalServiceTestSuite) TestRequestRental_CapacityExceeded() {
	suite.subSvc.On("GetForUser", suite.ctx, suite.userID).Return(suite.sub, nil)
	suite.subSvc.On("PlanFor", suite.sub).Return(suite.miniPlan, true)
	suite.rentalRepo.On("CountOccupying", suite.ctx, suite.userID).Return(1, nil)

	_, err := suite.svc.RequestRental(suite.ctx, suite.userID, uuid.New())
	assert.ErrorIs(suite.T(), err, ErrCapacityExceeded)
	suite.rentalRepo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything)
}

// Two concurrent requests for the last free slot must resolve to exactly one
// success: the per-user lock serializes the count-then-create sequence.
func (suite *RentalServiceTestSuite) TestRequestRental_ConcurrentLastSlot() {
	suite.subSvc.On("GetForUser", suite.ctx, suite.userID).Return(suite.sub, nil).Twice()
	suite.subSvc.On("PlanFor", suite.sub).Return(suite.miniPlan, true).Twice()
	// serialized by the user lock: the second request observes the first's write
	suite.rentalRepo.On("CountOccupying", suite.ctx, suite.userID).Return(0, nil).Once()
	suite.rentalRepo.On("CountOccupying", suite.ctx, suite.userID).Return(1, nil).Once()
	suite.rentalRepo.On("Create", suite.ctx, mock.Anything).Return(nil).Once()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.svc.RequestRental(suite.ctx, suite.userID, uuid.New())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, capacityErrs int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case err == ErrCapacityExceeded:
			capacityErrs++
		default:
			suite.T().Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(suite.T(), 1, successes)
	assert.Equal(suite.T(), 1, capacityErrs)

	// lock entries are released with the requests; the map must not retain
	// one per user for the lifetime of the service
	impl := suite.svc.(*rentalService)
	impl.mu.Lock()
	remaining := len(impl.userLocks)
	impl.mu.Unlock()
	assert.Zero(suite.T(), remaining)
}

func (suite *RentalServiceTestSuite) TestRequestRental_ReleasesLockEntry() {
	suite.subSvc.On("GetForUser", suite.ctx, suite.userID).Return(suite.sub, nil)
	suite.subSvc.On("PlanFor", suite.sub).Return(suite.miniPlan, true)
	suite.rentalRepo.On("CountOccupying", suite.ctx, suite.userID).Return(0, nil)
	suite.rentalRepo.On("Create", suite.ctx, mock.Anything).Return(nil)

	_, err := suite.svc.RequestRental(suite.ctx, suite.userID, uuid.New())
	assert.NoError(suite.T(), err)

	impl := suite.svc.(*rentalService)
	impl.mu.Lock()
	remaining := len(impl.userLocks)
	impl.mu.Unlock()
	assert.Zero(suite.T(), remaining)
}

func (suite *RentalServiceTestSuite) TestExchange_ReplacementInheritsDueDate() {
	due := time.Now().AddDate(0, 0, 7)
	rental := &models.Rental{
		ID:             uuid.New(),
		UserID:         suite.userID,
		SubscriptionID: suite.sub.ID,
		BookID:         uuid.New(),
		Status:         models.RentalStatusActive,
		DueDate:        due,
	}
	newBookID := uuid.New()

	suite.rentalRepo.On("GetByID", suite.ctx, rental.ID).Return(rental, nil)
	suite.subSvc.On("GetByID", suite.ctx, suite.sub.ID).Return(suite.sub, nil)
	suite.subSvc.On("PlanFor", suite.sub).Return(suite.miniPlan, true)
	suite.rentalRepo.On("Update", suite.ctx, mock.MatchedBy(func(r *models.Rental) bool {
		return r.ID == rental.ID && r.Status == models.RentalStatusExchanged
	})).Return(nil)
	suite.rentalRepo.On("Create", suite.ctx, mock.MatchedBy(func(r *models.Rental) bool {
		return r.BookID == newBookID && r.DueDate.Equal(due) && r.ExchangeCount == 1
	})).Return(nil)
	suite.subSvc.On("RecordExchange", suite.ctx, suite.sub).Return(nil)

	replacement, err := suite.svc.Exchange(suite.ctx, rental.ID, newBookID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), replacement.DueDate.Equal(due), "replacement keeps the original due date")
	assert.Equal(suite.T(), 1, suite.sub.ExchangesUsed)
}

func (suite *RentalServiceTestSuite) TestExchange_MonthlyLimitReached() {
	suite.sub.ExchangesUsed = 1
	rental := &models.Rental{
		ID:             uuid.New(),
		UserID:         suite.userID,
		SubscriptionID: suite.sub.ID,
		Status:         models.RentalStatusActive,
	}
	suite.rentalRepo.On("GetByID", suite.ctx, rental.ID).Return(rental, nil)
	suite.subSvc.On("GetByID", suite.ctx, suite.sub.ID).Return(suite.sub, nil)
	suite.subSvc.On("PlanFor", suite.sub).Return(suite.miniPlan, true)

	_, err := suite.svc.Exchange(suite.ctx, rental.ID, uuid.New())
	assert.ErrorIs(suite.T(), err, ErrExchangeLimitReached)
	suite.rentalRepo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything)
}

func (suite *RentalServiceTestSuite) TestExchange_RequiresActiveRental() {
	rental := &models.Rental{
		ID:     uuid.New(),
		UserID: suite.userID,
		Status: models.RentalStatusReturned,
	}
	suite.rentalRepo.On("GetByID", suite.ctx, rental.ID).Return(rental, nil)

	_, err := suite.svc.Exchange(suite.ctx, rental.ID, uuid.New())
	assert.ErrorIs(suite.T(), err, ErrRentalNotExchangeable)
}

func (suite *RentalServiceTestSuite) TestReturn_Idempotent() {
	rental := &models.Rental{
		ID:     uuid.New(),
		UserID: suite.userID,
		Status: models.RentalStatusReturned,
	}
	suite.rentalRepo.On("GetByID", suite.ctx, rental.ID).Return(rental, nil)

	got, err := suite.svc.Return(suite.ctx, rental.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.RentalStatusReturned, got.Status)
	suite.rentalRepo.AssertNotCalled(suite.T(), "Update", mock.Anything, mock.Anything)
}

func (suite *RentalServiceTestSuite) TestReturn_OverdueRentalCloses() {
	rental := &models.Rental{
		ID:     uuid.New(),
		UserID: suite.userID,
		Status: models.RentalStatusOverdue,
	}
	suite.rentalRepo.On("GetByID", suite.ctx, rental.ID).Return(rental, nil)
	suite.rentalRepo.On("Update", suite.ctx, rental).Return(nil)

	got, err := suite.svc.Return(suite.ctx, rental.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.RentalStatusReturned, got.Status)
}

func (suite *RentalServiceTestSuite) TestSweepOverdue() {
	first := &models.Rental{ID: uuid.New(), Status: models.RentalStatusActive, DueDate: time.Now().Add(-time.Hour)}
	second := &models.Rental{ID: uuid.New(), Status: models.RentalStatusActive, DueDate: time.Now().Add(-2 * time.Hour)}

	suite.rentalRepo.On("ListActivePastDue", suite.ctx, mock.Anything, 500).Return([]*models.Rental{first, second}, nil)
	suite.rentalRepo.On("Update", suite.ctx, first).Return(nil)
	suite.rentalRepo.On("Update", suite.ctx, second).Return(nil)

	promoted, err := suite.svc.SweepOverdue(suite.ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, promoted)
	assert.Equal(suite.T(), models.RentalStatusOverdue, first.Status)
}
