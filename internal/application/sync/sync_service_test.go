package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appallocation "github.com/channelsync/backend/internal/application/allocation"
	appconflict "github.com/channelsync/backend/internal/application/conflict"
	"github.com/channelsync/backend/internal/domain/allocation"
	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/conflict"
	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/infrastructure/queue"
)

// MockJobRepository is a mock implementation of sync.JobRepository
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.SyncJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.SyncJob), args.Error(1)
}

func (m *MockJobRepository) FindByStore(ctx context.Context, storeID uuid.UUID, filter sync.JobFilter) ([]*sync.SyncJob, int64, error) {
	args := m.Called(ctx, storeID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*sync.SyncJob), args.Get(1).(int64), args.Error(2)
}

func (m *MockJobRepository) FindChildren(ctx context.Context, parentID uuid.UUID) ([]*sync.SyncJob, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sync.SyncJob), args.Error(1)
}

func (m *MockJobRepository) ClaimNext(ctx context.Context, category sync.Category, now time.Time) (*sync.SyncJob, error) {
	args := m.Called(ctx, category, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.SyncJob), args.Error(1)
}

func (m *MockJobRepository) Save(ctx context.Context, job *sync.SyncJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) CountByStatus(ctx context.Context, category sync.Category) (map[sync.Status]int64, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[sync.Status]int64), args.Error(1)
}

func (m *MockJobRepository) FindDead(ctx context.Context, storeID uuid.UUID, limit int) ([]*sync.SyncJob, error) {
	args := m.Called(ctx, storeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sync.SyncJob), args.Error(1)
}

// MockSyncStatusRepository is a mock implementation of sync.SyncStatusRepository
type MockSyncStatusRepository struct {
	mock.Mock
}

func (m *MockSyncStatusRepository) FindByChannel(ctx context.Context, storeID, channelID uuid.UUID) (*sync.SyncStatus, error) {
	args := m.Called(ctx, storeID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.SyncStatus), args.Error(1)
}

func (m *MockSyncStatusRepository) FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*sync.SyncStatus, error) {
	args := m.Called(ctx, storeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sync.SyncStatus), args.Error(1)
}

func (m *MockSyncStatusRepository) Save(ctx context.Context, status *sync.SyncStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

// MockChannelRepository is a mock implementation of channel.Repository
type MockChannelRepository struct {
	mock.Mock
}

func (m *MockChannelRepository) FindByID(ctx context.Context, id uuid.UUID) (*channel.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.Channel), args.Error(1)
}

func (m *MockChannelRepository) FindByStoreAndType(ctx context.Context, storeID uuid.UUID, channelType channel.Type) (*channel.Channel, error) {
	args := m.Called(ctx, storeID, channelType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.Channel), args.Error(1)
}

func (m *MockChannelRepository) FindActiveByStore(ctx context.Context, storeID uuid.UUID) ([]*channel.Channel, error) {
	args := m.Called(ctx, storeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*channel.Channel), args.Error(1)
}

func (m *MockChannelRepository) FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*channel.Channel, error) {
	args := m.Called(ctx, storeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*channel.Channel), args.Error(1)
}

func (m *MockChannelRepository) Save(ctx context.Context, ch *channel.Channel) error {
	args := m.Called(ctx, ch)
	return args.Error(0)
}

func (m *MockChannelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockProductMappingRepository is a mock implementation of channel.ProductMappingRepository
type MockProductMappingRepository struct {
	mock.Mock
}

func (m *MockProductMappingRepository) FindByID(ctx context.Context, id uuid.UUID) (*channel.ProductMapping, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.ProductMapping), args.Error(1)
}

func (m *MockProductMappingRepository) FindByChannelAndProduct(ctx context.Context, channelID, productID uuid.UUID) (*channel.ProductMapping, error) {
	args := m.Called(ctx, channelID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.ProductMapping), args.Error(1)
}

func (m *MockProductMappingRepository) FindByNativeRef(ctx context.Context, channelID uuid.UUID, nativeProductRef string) (*channel.ProductMapping, error) {
	args := m.Called(ctx, channelID, nativeProductRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.ProductMapping), args.Error(1)
}

func (m *MockProductMappingRepository) FindActiveByChannel(ctx context.Context, channelID uuid.UUID) ([]*channel.ProductMapping, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*channel.ProductMapping), args.Error(1)
}

func (m *MockProductMappingRepository) FindByProduct(ctx context.Context, storeID, productID uuid.UUID) ([]*channel.ProductMapping, error) {
	args := m.Called(ctx, storeID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*channel.ProductMapping), args.Error(1)
}

func (m *MockProductMappingRepository) Save(ctx context.Context, mapping *channel.ProductMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *MockProductMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAllocationRepository is a mock implementation of allocation.Repository
type MockAllocationRepository struct {
	mock.Mock
}

func (m *MockAllocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*allocation.InventoryAllocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*allocation.InventoryAllocation), args.Error(1)
}

func (m *MockAllocationRepository) FindByProduct(ctx context.Context, storeID, productID uuid.UUID) (*allocation.InventoryAllocation, error) {
	args := m.Called(ctx, storeID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*allocation.InventoryAllocation), args.Error(1)
}

func (m *MockAllocationRepository) FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*allocation.InventoryAllocation, error) {
	args := m.Called(ctx, storeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*allocation.InventoryAllocation), args.Error(1)
}

func (m *MockAllocationRepository) Save(ctx context.Context, a *allocation.InventoryAllocation) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAllocationRepository) SaveWithVersion(ctx context.Context, a *allocation.InventoryAllocation, expectedVersion int) error {
	args := m.Called(ctx, a, expectedVersion)
	return args.Error(0)
}

func (m *MockAllocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockRegistry is a mock implementation of channel.Registry
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) PushInventory(ctx context.Context, channelID uuid.UUID, productRef string, quantity decimal.Decimal) error {
	args := m.Called(ctx, channelID, productRef, quantity)
	return args.Error(0)
}

func (m *MockRegistry) PullInventory(ctx context.Context, channelID uuid.UUID, productRefs []string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, channelID, productRefs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

func (m *MockRegistry) Authenticate(ctx context.Context, channelID uuid.UUID) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

func (m *MockRegistry) HealthCheck(ctx context.Context, channelID uuid.UUID) (channel.HealthStatus, error) {
	args := m.Called(ctx, channelID)
	return args.Get(0).(channel.HealthStatus), args.Error(1)
}

func (m *MockRegistry) VerifyWebhookSignature(ctx context.Context, channelID uuid.UUID, payload []byte, signatureHeader string) (bool, error) {
	args := m.Called(ctx, channelID, payload, signatureHeader)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistry) BreakerState(channelID uuid.UUID) channel.BreakerState {
	args := m.Called(channelID)
	return args.Get(0).(channel.BreakerState)
}

func (m *MockRegistry) ForceBreaker(channelID uuid.UUID, state channel.BreakerState) error {
	args := m.Called(channelID, state)
	return args.Error(0)
}

func (m *MockRegistry) Evict(channelID uuid.UUID) {
	m.Called(channelID)
}

type syncFixture struct {
	jobs        *MockJobRepository
	statuses    *MockSyncStatusRepository
	channels    *MockChannelRepository
	mappings    *MockProductMappingRepository
	allocations *MockAllocationRepository
	registry    *MockRegistry
	svc         *SyncService
}

func newSyncFixture() *syncFixture {
	f := &syncFixture{
		jobs:        new(MockJobRepository),
		statuses:    new(MockSyncStatusRepository),
		channels:    new(MockChannelRepository),
		mappings:    new(MockProductMappingRepository),
		allocations: new(MockAllocationRepository),
		registry:    new(MockRegistry),
	}

	detector := conflict.NewDetector(conflict.DefaultDetectorConfig())
	conflictRepo := new(MockConflictRepository)
	conflictRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	conflictSvc := appconflict.NewConflictService(conflictRepo, f.channels, f.mappings, f.registry, detector, zap.NewNop())
	allocationSvc := appallocation.NewAllocationService(f.allocations, f.channels, zap.NewNop())

	q := queue.NewQueue(f.jobs, config.QueueConfig{}, zap.NewNop())
	f.svc = NewSyncService(
		f.jobs, f.statuses, f.channels, f.mappings, f.allocations,
		f.registry, q, detector, conflictSvc, allocationSvc,
		config.ConflictConfig{DefaultStrategy: string(conflict.StrategyConservative)},
		config.AllocationConfig{DefaultStrategy: string(allocation.StrategyEqualDistribution)},
		zap.NewNop(),
	)
	return f
}

// MockConflictRepository is a mock implementation of conflict.Repository
type MockConflictRepository struct {
	mock.Mock
}

func (m *MockConflictRepository) FindByID(ctx context.Context, id uuid.UUID) (*conflict.SyncConflict, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conflict.SyncConflict), args.Error(1)
}

func (m *MockConflictRepository) FindByStore(ctx context.Context, storeID uuid.UUID, filter conflict.Filter) ([]*conflict.SyncConflict, int64, error) {
	args := m.Called(ctx, storeID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*conflict.SyncConflict), args.Get(1).(int64), args.Error(2)
}

func (m *MockConflictRepository) FindPendingByProduct(ctx context.Context, storeID, productID uuid.UUID) ([]*conflict.SyncConflict, error) {
	args := m.Called(ctx, storeID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*conflict.SyncConflict), args.Error(1)
}

func (m *MockConflictRepository) FindSince(ctx context.Context, storeID uuid.UUID, since time.Time) ([]*conflict.SyncConflict, error) {
	args := m.Called(ctx, storeID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*conflict.SyncConflict), args.Error(1)
}

func (m *MockConflictRepository) Save(ctx context.Context, c *conflict.SyncConflict) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func activeChannel(storeID uuid.UUID, name string) *channel.Channel {
	ch, _ := channel.NewChannel(storeID, name, channel.TypeShopify, "cred-"+name, 1)
	return ch
}

func TestSyncService_SyncAllChannelsEnqueuesParent(t *testing.T) {
	f := newSyncFixture()
	storeID := uuid.New()

	f.channels.On("FindActiveByStore", mock.Anything, storeID).
		Return([]*channel.Channel{activeChannel(storeID, "a"), activeChannel(storeID, "b")}, nil)

	var enqueued *sync.SyncJob
	f.jobs.On("Save", mock.Anything, mock.AnythingOfType("*sync.SyncJob")).
		Run(func(args mock.Arguments) { enqueued = args.Get(1).(*sync.SyncJob) }).
		Return(nil).Once()

	resp, err := f.svc.SyncAllChannels(context.Background(), storeID)

	require.NoError(t, err)
	require.NotNil(t, enqueued)
	assert.Equal(t, resp.JobID, enqueued.ID)
	assert.Equal(t, sync.CategorySync, enqueued.Category)
	assert.Equal(t, KindSyncAll, enqueued.Kind)
	assert.NotEmpty(t, resp.EstimatedDuration)
}

func TestSyncService_SyncAllChannelsRequiresActiveChannels(t *testing.T) {
	f := newSyncFixture()
	storeID := uuid.New()

	f.channels.On("FindActiveByStore", mock.Anything, storeID).Return([]*channel.Channel{}, nil)

	_, err := f.svc.SyncAllChannels(context.Background(), storeID)
	assert.Error(t, err)
	f.jobs.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSyncService_HandleSyncAllFansOut(t *testing.T) {
	f := newSyncFixture()
	storeID := uuid.New()
	chA := activeChannel(storeID, "a")
	chB := activeChannel(storeID, "b")

	f.channels.On("FindActiveByStore", mock.Anything, storeID).
		Return([]*channel.Channel{chA, chB}, nil)

	var children []*sync.SyncJob
	f.jobs.On("Save", mock.Anything, mock.AnythingOfType("*sync.SyncJob")).
		Run(func(args mock.Arguments) { children = append(children, args.Get(1).(*sync.SyncJob)) }).
		Return(nil)

	parent := sync.NewSyncJob(storeID, sync.CategorySync, KindSyncAll, "{}")
	require.NoError(t, parent.Start())

	err := f.svc.handleSyncAll(context.Background(), parent)

	assert.ErrorIs(t, err, queue.ErrFanOutPending)
	require.Len(t, children, 2)
	for _, child := range children {
		require.NotNil(t, child.ParentID)
		assert.Equal(t, parent.ID, *child.ParentID)
		assert.Equal(t, KindSyncChannel, child.Kind)
	}
}

func TestSyncService_HandleSyncChannelDefersWhenBreakerOpen(t *testing.T) {
	f := newSyncFixture()
	storeID := uuid.New()
	ch := activeChannel(storeID, "a")

	f.registry.On("BreakerState", ch.ID).Return(channel.BreakerOpen)

	job := sync.NewSyncJob(storeID, sync.CategorySync, KindSyncChannel,
		marshalPayload(syncChannelPayload{ChannelID: ch.ID}))
	require.NoError(t, job.Start())

	err := f.svc.handleSyncChannel(context.Background(), job)

	assert.ErrorIs(t, err, channel.ErrBreakerOpen)
	f.channels.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	f.statuses.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSyncService_HandleSyncChannelRaisesConflictOnDiscrepancy(t *testing.T) {
	f := newSyncFixture()
	storeID := uuid.New()
	productID := uuid.New()
	ch := activeChannel(storeID, "a")

	mapping, err := channel.NewProductMapping(storeID, ch.ID, productID, "ref-1")
	require.NoError(t, err)

	local, err := allocation.NewInventoryAllocation(storeID, productID, decimal.NewFromInt(100), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, local.ApplyPlan(allocation.Plan{
		Strategy: allocation.StrategyEqualDistribution,
		Lines:    []allocation.PlanLine{{ChannelID: ch.ID, Quantity: decimal.NewFromInt(100)}},
	}))

	f.registry.On("BreakerState", ch.ID).Return(channel.BreakerClosed)
	f.channels.On("FindByID", mock.Anything, ch.ID).Return(ch, nil)
	f.statuses.On("FindByChannel", mock.Anything, storeID, ch.ID).Return(nil, sync.ErrStatusNotFound)
	f.statuses.On("Save", mock.Anything, mock.AnythingOfType("*sync.SyncStatus")).Return(nil)
	f.mappings.On("FindActiveByChannel", mock.Anything, ch.ID).
		Return([]*channel.ProductMapping{mapping}, nil)
	f.registry.On("PullInventory", mock.Anything, ch.ID, []string{"ref-1"}).
		Return(map[string]decimal.Decimal{"ref-1": decimal.NewFromInt(80)}, nil)
	f.allocations.On("FindByProduct", mock.Anything, storeID, productID).Return(local, nil)
	f.mappings.On("Save", mock.Anything, mapping).Return(nil)

	var resolutionJob *sync.SyncJob
	f.jobs.On("Save", mock.Anything, mock.AnythingOfType("*sync.SyncJob")).
		Run(func(args mock.Arguments) { resolutionJob = args.Get(1).(*sync.SyncJob) }).
		Return(nil)

	job := sync.NewSyncJob(storeID, sync.CategorySync, KindSyncChannel,
		marshalPayload(syncChannelPayload{ChannelID: ch.ID}))
	require.NoError(t, job.Start())

	require.NoError(t, f.svc.handleSyncChannel(context.Background(), job))

	require.NotNil(t, resolutionJob, "a conflict resolution job should be enqueued")
	assert.Equal(t, sync.CategoryConflict, resolutionJob.Category)
	assert.Equal(t, KindResolveConflict, resolutionJob.Kind)
	assert.NotNil(t, mapping.LastSyncedAt)
}

func TestSyncService_HandleSyncChannelAgreementEnqueuesNothing(t *testing.T) {
	f := newSyncFixture()
	storeID := uuid.New()
	productID := uuid.New()
	ch := activeChannel(storeID, "a")

	mapping, err := channel.NewProductMapping(storeID, ch.ID, productID, "ref-1")
	require.NoError(t, err)

	local, err := allocation.NewInventoryAllocation(storeID, productID, decimal.NewFromInt(100), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, local.ApplyPlan(allocation.Plan{
		Strategy: allocation.StrategyEqualDistribution,
		Lines:    []allocation.PlanLine{{ChannelID: ch.ID, Quantity: decimal.NewFromInt(100)}},
	}))

	f.registry.On("BreakerState", ch.ID).Return(channel.BreakerClosed)
	f.channels.On("FindByID", mock.Anything, ch.ID).Return(ch, nil)
	f.statuses.On("FindByChannel", mock.Anything, storeID, ch.ID).Return(nil, sync.ErrStatusNotFound)
	f.statuses.On("Save", mock.Anything, mock.AnythingOfType("*sync.SyncStatus")).Return(nil)
	f.mappings.On("FindActiveByChannel", mock.Anything, ch.ID).
		Return([]*channel.ProductMapping{mapping}, nil)
	f.registry.On("PullInventory", mock.Anything, ch.ID, []string{"ref-1"}).
		Return(map[string]decimal.Decimal{"ref-1": decimal.NewFromInt(100)}, nil)
	f.allocations.On("FindByProduct", mock.Anything, storeID, productID).Return(local, nil)
	f.mappings.On("Save", mock.Anything, mapping).Return(nil)

	job := sync.NewSyncJob(storeID, sync.CategorySync, KindSyncChannel,
		marshalPayload(syncChannelPayload{ChannelID: ch.ID}))
	require.NoError(t, job.Start())

	require.NoError(t, f.svc.handleSyncChannel(context.Background(), job))
	f.jobs.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSyncService_HandleWebhookIgnoresUnmappedProduct(t *testing.T) {
	f := newSyncFixture()
	storeID := uuid.New()
	ch := activeChannel(storeID, "a")

	f.channels.On("FindByID", mock.Anything, ch.ID).Return(ch, nil)
	f.mappings.On("FindByNativeRef", mock.Anything, ch.ID, "ghost-ref").
		Return(nil, channel.ErrMappingNotFound)

	job := sync.NewSyncJob(storeID, sync.CategoryWebhook, KindProcessWebhook,
		marshalPayload(webhookJobPayload{
			ChannelID:     ch.ID,
			Topic:         "inventory_levels/update",
			NativeEventID: "evt-1",
			Body:          []byte(`{"product_ref":"ghost-ref","quantity":7}`),
		}))
	require.NoError(t, job.Start())

	assert.NoError(t, f.svc.handleWebhook(context.Background(), job))
}

func TestSyncService_RequeueDeadJob(t *testing.T) {
	f := newSyncFixture()
	storeID := uuid.New()

	job := sync.NewSyncJob(storeID, sync.CategorySync, KindSyncChannel, "{}")
	require.NoError(t, job.Start())
	require.NoError(t, job.Fail(channel.ErrAuthFailed, false))
	require.Equal(t, sync.StatusDead, job.Status)

	f.jobs.On("FindByID", mock.Anything, job.ID).Return(job, nil)
	f.jobs.On("Save", mock.Anything, job).Return(nil)

	resp, err := f.svc.RequeueDeadJob(context.Background(), job.ID)

	require.NoError(t, err)
	assert.Equal(t, sync.StatusQueued, resp.Status)
	assert.Equal(t, 0, resp.Attempts)
}
