package recount

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"metal-catalog-service/internal/domain"
)

// memoryStore is an in-memory category table that applies writes, so consecutive runs
// observe each other's results.
type memoryStore struct {
	categories []domain.CategoryCount
	direct     map[int64]int
	failWrites map[int64]error
	writes     []int64
}

func (m *memoryStore) ListCategoryCounts(ctx context.Context) ([]domain.CategoryCount, error) {
	out := make([]domain.CategoryCount, len(m.categories))
	copy(out, m.categories)
	return out, nil
}

func (m *memoryStore) CountProductsByCategory(ctx context.Context, includeInactive bool) (map[int64]int, error) {
	return m.direct, nil
}

func (m *memoryStore) UpdateCategoryProductCount(ctx context.Context, categoryID int64, total int) error {
	if err := m.failWrites[categoryID]; err != nil {
		return err
	}
	m.writes = append(m.writes, categoryID)
	for i := range m.categories {
		if m.categories[i].ID == categoryID {
			m.categories[i].ProductCount = total
		}
	}
	return nil
}

func (m *memoryStore) stored(id int64) int {
	for _, c := range m.categories {
		if c.ID == id {
			return c.ProductCount
		}
	}
	return -1
}

// MockSource and MockSink let tests assert that no writes happen after a failed read.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ListCategoryCounts(ctx context.Context) ([]domain.CategoryCount, error) {
	args := m.Called(ctx)
	var cats []domain.CategoryCount
	if arg0 := args.Get(0); arg0 != nil {
		cats = arg0.([]domain.CategoryCount)
	}
	return cats, args.Error(1)
}

func (m *MockSource) CountProductsByCategory(ctx context.Context, includeInactive bool) (map[int64]int, error) {
	args := m.Called(ctx, includeInactive)
	var counts map[int64]int
	if arg0 := args.Get(0); arg0 != nil {
		counts = arg0.(map[int64]int)
	}
	return counts, args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) UpdateCategoryProductCount(ctx context.Context, categoryID int64, total int) error {
	args := m.Called(ctx, categoryID, total)
	return args.Error(0)
}

// exampleStore is the A(5) -> B(3) -> C(2) tree plus an unrelated root D with child E.
func exampleStore() *memoryStore {
	return &memoryStore{
		categories: []domain.CategoryCount{
			{ID: 1, ProductCount: 0},
			{ID: 2, ParentCategoryID: parent(1)},
			{ID: 3, ParentCategoryID: parent(2)},
			{ID: 4, ProductCount: 0},
			{ID: 5, ParentCategoryID: parent(4)},
		},
		direct: map[int64]int{1: 5, 2: 3, 3: 2, 4: 1, 5: 1},
	}
}

func TestAggregator_Run_WritesTotals(t *testing.T) {
	store := exampleStore()
	agg := NewAggregator(store, store, nil)

	summary, err := agg.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, summary.Examined)
	assert.Equal(t, 5, summary.Updated)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 10, store.stored(1))
	assert.Equal(t, 5, store.stored(2))
	assert.Equal(t, 2, store.stored(3))
	assert.Equal(t, 2, store.stored(4))
}

func TestAggregator_Run_SecondRunIsNoop(t *testing.T) {
	store := exampleStore()
	agg := NewAggregator(store, store, nil)

	_, err := agg.Run(context.Background())
	require.NoError(t, err)
	store.writes = nil

	summary, err := agg.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, summary.Updated)
	assert.Equal(t, 5, summary.Unchanged)
	assert.Empty(t, store.writes)
}

func TestAggregator_Run_OnlyChangedPathIsWritten(t *testing.T) {
	store := exampleStore()
	agg := NewAggregator(store, store, nil)
	_, err := agg.Run(context.Background())
	require.NoError(t, err)
	store.writes = nil

	store.direct[3] = 4
	summary, err := agg.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, store.writes, "leaf and its ancestors only")
	assert.Equal(t, []Update{
		{CategoryID: 1, Previous: 10, Total: 12},
		{CategoryID: 2, Previous: 5, Total: 7},
		{CategoryID: 3, Previous: 2, Total: 4},
	}, summary.Updates)
	assert.Equal(t, 2, store.stored(4), "sibling subtree untouched")
}

func TestAggregator_Run_OrphanDoesNotFail(t *testing.T) {
	store := &memoryStore{
		categories: []domain.CategoryCount{
			{ID: 1},
			{ID: 9, ParentCategoryID: parent(12345)},
			{ID: 10, ParentCategoryID: parent(9)},
		},
		direct: map[int64]int{1: 1, 9: 2, 10: 3},
	}

	summary, err := NewAggregator(store, store, nil).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Updated)
	assert.Equal(t, 5, store.stored(9))
}

func TestAggregator_Run_ListFailureAbortsWithoutWrites(t *testing.T) {
	source := new(MockSource)
	sink := new(MockSink)
	listErr := errors.New("connection refused")
	source.On("ListCategoryCounts", mock.Anything).Return(nil, listErr).Once()

	summary, err := NewAggregator(source, sink, nil).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, listErr))
	assert.Nil(t, summary)
	sink.AssertNotCalled(t, "UpdateCategoryProductCount", mock.Anything, mock.Anything, mock.Anything)
	source.AssertExpectations(t)
}

func TestAggregator_Run_CountFailureAbortsWithoutWrites(t *testing.T) {
	source := new(MockSource)
	sink := new(MockSink)
	countErr := errors.New("statement timeout")
	source.On("ListCategoryCounts", mock.Anything).Return([]domain.CategoryCount{{ID: 1}}, nil).Once()
	source.On("CountProductsByCategory", mock.Anything, false).Return(nil, countErr).Once()

	_, err := NewAggregator(source, sink, nil).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, countErr))
	sink.AssertNotCalled(t, "UpdateCategoryProductCount", mock.Anything, mock.Anything, mock.Anything)
	source.AssertExpectations(t)
}

func TestAggregator_Run_WriteFailureIsLoggedAndSkipped(t *testing.T) {
	store := exampleStore()
	store.failWrites = map[int64]error{2: errors.New("row locked")}
	core, logs := observer.New(zapcore.InfoLevel)
	agg := NewAggregator(store, store, zap.New(core).Sugar())

	summary, err := agg.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, int64(2), summary.Errors[0].CategoryID)
	assert.Equal(t, "row locked", summary.Errors[0].Error)
	assert.Equal(t, []int64{1, 3, 4, 5}, store.writes)

	failed := logs.FilterMessage("category total update failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(2), failed[0].ContextMap()["category_id"])
	assert.Equal(t, 1, logs.FilterMessage("category recount finished").Len())

	// The failed row self-heals on the next run.
	store.failWrites = nil
	store.writes = nil
	summary, err = agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, store.writes)
	assert.Equal(t, 1, summary.Updated)
}

func TestAggregator_Run_PassesInactiveOption(t *testing.T) {
	source := new(MockSource)
	sink := new(MockSink)
	source.On("ListCategoryCounts", mock.Anything).Return([]domain.CategoryCount{{ID: 1, ProductCount: 3}}, nil).Once()
	source.On("CountProductsByCategory", mock.Anything, true).Return(map[int64]int{1: 3}, nil).Once()

	summary, err := NewAggregator(source, sink, nil, WithInactiveProducts(true)).Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, summary.Updated)
	source.AssertExpectations(t)
	sink.AssertExpectations(t)
}
