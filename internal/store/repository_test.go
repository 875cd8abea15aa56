package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-insights/internal/models"
)

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

type mealRow struct {
	mealID   string
	name     string
	carbs    float64
	calories *float64
	eatenAt  time.Time
	source   string
}

type mealRows struct {
	data   []mealRow
	idx    int
	closed bool
	errVal error
}

func (r *mealRows) Next() bool {
	if r.closed || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mealRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	*dest[0].(*string) = row.mealID
	*dest[1].(*string) = row.name
	*dest[2].(*float64) = row.carbs
	*dest[3].(**float64) = row.calories
	*dest[4].(*time.Time) = row.eatenAt
	*dest[5].(*string) = row.source
	return nil
}

func (r *mealRows) Close()                                       { r.closed = true }
func (r *mealRows) Err() error                                   { return r.errVal }
func (r *mealRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mealRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mealRows) RawValues() [][]byte                          { return nil }
func (r *mealRows) Values() ([]any, error)                       { return nil, nil }
func (r *mealRows) Conn() *pgx.Conn                              { return nil }

var syncTime = time.Date(2026, 2, 15, 11, 0, 0, 0, time.UTC)

func newTestRepo(db DBTX) *Repository {
	r := NewRepository(db)
	r.now = func() time.Time { return syncTime.Add(time.Minute) }
	return r
}

func TestEnsureSchema(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, schemaSQL, mock.Anything).Return(pgconn.CommandTag{}, nil)

	require.NoError(t, EnsureSchema(context.Background(), db))
	db.AssertExpectations(t)
}

func TestRepository_SaveSync(t *testing.T) {
	db := new(mockDBTX)
	repo := newTestRepo(db)

	var mealIDs []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			params := args.Get(2).([]any)
			if len(params) == 9 {
				mealIDs = append(mealIDs, params[0])
			}
		}).
		Return(pgconn.CommandTag{}, nil)

	err := repo.SaveSync(context.Background(), SyncBatch{
		DeviceID: "pixel",
		SyncedAt: syncTime,
		Meals: []SyncedMeal{
			{ID: "a", Name: "Oats", CarbsGrams: 40, EatenAt: syncTime, Provider: models.ProviderHealthConnect},
			{ID: "b", Name: "Rice", CarbsGrams: 60, EatenAt: syncTime, Provider: models.ProviderMyFitnessPal},
		},
	})
	require.NoError(t, err)

	db.AssertNumberOfCalls(t, "Exec", 4)
	assert.Equal(t, []any{"pixel:a", "pixel:b"}, mealIDs)
}

func TestRepository_SaveSync_Error(t *testing.T) {
	db := new(mockDBTX)
	repo := newTestRepo(db)
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection reset"))

	err := repo.SaveSync(context.Background(), SyncBatch{DeviceID: "pixel", SyncedAt: syncTime})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upserting health summary")
}

func TestRepository_LatestSummary(t *testing.T) {
	db := new(mockDBTX)
	repo := newTestRepo(db)

	steps := 9000.0
	weighed := syncTime.Add(-2 * time.Hour)
	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(**float64) = &steps
		*dest[1].(**float64) = nil
		*dest[2].(**time.Time) = &weighed
		*dest[3].(*time.Time) = syncTime
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.Anything, []any{latestSummaryID}).Return(row)

	got, err := repo.LatestSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9000.0, *got.StepsLast24h)
	assert.Nil(t, got.WeightKgLatest)
	assert.Equal(t, "2026-02-15T09:00:00.000Z", *got.WeightUpdatedAt)
	assert.Equal(t, "2026-02-15T11:00:00.000Z", got.SyncedAt)
}

func TestRepository_LatestSummary_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := newTestRepo(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.LatestSummary(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ListMeals(t *testing.T) {
	db := new(mockDBTX)
	repo := newTestRepo(db)

	cal := 420.5
	rows := &mealRows{data: []mealRow{
		{mealID: "b", name: "Rice", carbs: 60, calories: &cal, eatenAt: syncTime, source: models.ProviderMyFitnessPal},
		{mealID: "a", name: "Oats", carbs: 40, eatenAt: syncTime.Add(-3 * time.Hour), source: models.ProviderHealthConnect},
	}}
	q := MealQuery{From: syncTime.Add(-24 * time.Hour), To: syncTime, Limit: 500}
	db.On("Query", mock.Anything, mock.Anything, []any{q.From, q.To, q.Limit}).Return(rows, nil)

	meals, err := repo.ListMeals(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, meals, 2)
	assert.Equal(t, "b", meals[0].ID)
	assert.Equal(t, 420.5, *meals[0].Calories)
	assert.Equal(t, "2026-02-15T08:00:00.000Z", meals[1].EatenAt)
	assert.Equal(t, models.MealSourceLogged, meals[1].Source)
	assert.True(t, rows.closed)
}

func TestRepository_ListMeals_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := newTestRepo(db)
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	_, err := repo.ListMeals(context.Background(), MealQuery{Limit: 1})
	assert.Error(t, err)
}
