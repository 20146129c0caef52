package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-footprint/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, name string, ts time.Time) *models.MealRecord {
	rice := models.NewReferenceEntry("Rice", 2.5, 2248, 2.8, 9.5)
	tofu := models.NewReferenceEntry("Tofu", 3.0, 149, 2.2, 20.4)
	summary := models.NewMeal(name, []*models.Portion{
		models.NewPortion(tofu, 0.1),
		models.NewPortion(rice, 0.2),
	}).Summary()
	return &models.MealRecord{ID: id, Timestamp: ts, Source: "image", Summary: summary}
}

func TestSaveAndGetMeals(t *testing.T) {
	s := newTestStorage(t)
	ts := time.Date(2026, 10, 16, 12, 30, 0, 0, time.UTC)

	want := record("meal-1", "Tofu rice", ts)
	require.NoError(t, s.SaveMeal(want))

	meals, err := s.GetMeals("", "", 10)
	require.NoError(t, err)
	require.Len(t, meals, 1)

	got := meals[0]
	assert.Equal(t, "meal-1", got.ID)
	assert.Equal(t, "Tofu rice", got.MealName)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, "image", got.Source)
	assert.InDelta(t, want.Totals.Carbon, got.Totals.Carbon, 1e-9)
	assert.InDelta(t, want.Totals.Combined, got.Totals.Combined, 1e-9)

	require.Len(t, got.Items, 2)
	assert.Equal(t, "Tofu", got.Items[0].Name, "portions keep detection order")
	assert.Equal(t, "Rice", got.Items[1].Name)
	assert.Equal(t, 0.2, got.Items[1].PortionKg)
}

func TestGetMealsFiltersAndOrders(t *testing.T) {
	s := newTestStorage(t)
	for i, day := range []int{14, 15, 16} {
		ts := time.Date(2026, 10, day, 9, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveMeal(record(string(rune('a'+i)), "meal", ts)))
	}

	meals, err := s.GetMeals("2026-10-15", "", 10)
	require.NoError(t, err)
	require.Len(t, meals, 2)
	assert.Equal(t, "c", meals[0].ID, "newest first")
	assert.Equal(t, "b", meals[1].ID)

	meals, err = s.GetMeals("", "2026-10-14", 10)
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Equal(t, "a", meals[0].ID)

	meals, err = s.GetMeals("", "", 1)
	require.NoError(t, err)
	assert.Len(t, meals, 1)
}

func TestSaveEmptyMeal(t *testing.T) {
	s := newTestStorage(t)
	rec := &models.MealRecord{ID: "empty", Timestamp: time.Now(), Source: "payload", Summary: models.NewMeal("No meal detected", nil).Summary()}
	require.NoError(t, s.SaveMeal(rec))

	meals, err := s.GetMeals("", "", 5)
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Empty(t, meals[0].Items)
	assert.NotNil(t, meals[0].Items)
}

func TestSaveDuplicateIDFails(t *testing.T) {
	s := newTestStorage(t)
	rec := record("dup", "meal", time.Now())
	require.NoError(t, s.SaveMeal(rec))
	assert.Error(t, s.SaveMeal(rec))
}

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func TestSaveMealRollsBackOnPortionFailure(t *testing.T) {
	it(func() {
		s := &SQLiteStorage{db: db}
		rec := record("meal-1", "Tofu rice", time.Now())

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO meals").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO portions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO portions").WillReturnError(errors.New("disk I/O error"))
		mock.ExpectRollback()

		err := s.SaveMeal(rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert portion")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveMealBeginFailure(t *testing.T) {
	it(func() {
		s := &SQLiteStorage{db: db}

		mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

		err := s.SaveMeal(record("meal-1", "x", time.Now()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetMealsQueryFailure(t *testing.T) {
	it(func() {
		s := &SQLiteStorage{db: db}

		mock.ExpectQuery("SELECT id, name, timestamp").WillReturnError(errors.New("no such table: meals"))

		_, err := s.GetMeals("", "", 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query meals")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
