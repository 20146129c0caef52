// internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"meal-footprint/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS meals (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        total_carbon REAL NOT NULL,
        total_water REAL NOT NULL,
        total_land REAL NOT NULL,
        total_nitrogen REAL NOT NULL,
        combined REAL NOT NULL,
        source TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS portions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        meal_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        name TEXT NOT NULL,
        portion_kg REAL NOT NULL,
        carbon REAL NOT NULL,
        water REAL NOT NULL,
        land REAL NOT NULL,
        nitrogen REAL NOT NULL,
        FOREIGN KEY (meal_id) REFERENCES meals(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_meals_timestamp ON meals(timestamp);
    CREATE INDEX IF NOT EXISTS idx_portions_meal_id ON portions(meal_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) SaveMeal(meal *models.MealRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	mealQuery := `
        INSERT INTO meals (id, name, timestamp, total_carbon, total_water, total_land, total_nitrogen, combined, source)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = tx.Exec(mealQuery,
		meal.ID, meal.MealName, meal.Timestamp.UTC().Format(time.RFC3339Nano),
		meal.Totals.Carbon, meal.Totals.Water, meal.Totals.Land, meal.Totals.Nitrogen,
		meal.Totals.Combined, meal.Source)
	if err != nil {
		return fmt.Errorf("failed to insert meal: %w", err)
	}

	portionQuery := `
        INSERT INTO portions (meal_id, position, name, portion_kg, carbon, water, land, nitrogen)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	for i, item := range meal.Items {
		_, err = tx.Exec(portionQuery,
			meal.ID, i, item.Name, item.PortionKg,
			item.Carbon, item.Water, item.Land, item.Nitrogen)
		if err != nil {
			return fmt.Errorf("failed to insert portion: %w", err)
		}
	}

	return tx.Commit()
}

// GetMeals returns stored meals, newest first. Dates are YYYY-MM-DD and
// inclusive; empty dates are unbounded.
func (s *SQLiteStorage) GetMeals(startDate, endDate string, limit int) ([]*models.MealRecord, error) {
	query := `
        SELECT id, name, timestamp, total_carbon, total_water, total_land, total_nitrogen, combined, source
        FROM meals
        WHERE 1=1
    `
	args := []interface{}{}

	if startDate != "" {
		query += " AND DATE(timestamp) >= ?"
		args = append(args, startDate)
	}
	if endDate != "" {
		query += " AND DATE(timestamp) <= ?"
		args = append(args, endDate)
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	var meals []*models.MealRecord
	for rows.Next() {
		meal := &models.MealRecord{}
		var timestampStr string

		err := rows.Scan(
			&meal.ID, &meal.MealName, &timestampStr,
			&meal.Totals.Carbon, &meal.Totals.Water, &meal.Totals.Land, &meal.Totals.Nitrogen,
			&meal.Totals.Combined, &meal.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}

		if meal.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr); err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}

		meals = append(meals, meal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meals: %w", err)
	}
	rows.Close()

	for _, meal := range meals {
		if err := s.loadPortionsForMeal(meal); err != nil {
			return nil, fmt.Errorf("failed to load portions for meal %s: %w", meal.ID, err)
		}
	}

	return meals, nil
}

func (s *SQLiteStorage) loadPortionsForMeal(meal *models.MealRecord) error {
	query := `
        SELECT name, portion_kg, carbon, water, land, nitrogen
        FROM portions
        WHERE meal_id = ?
        ORDER BY position
    `

	rows, err := s.db.Query(query, meal.ID)
	if err != nil {
		return fmt.Errorf("failed to query portions: %w", err)
	}
	defer rows.Close()

	items := []models.SummaryItem{}
	for rows.Next() {
		item := models.SummaryItem{}

		err := rows.Scan(
			&item.Name, &item.PortionKg, &item.Carbon,
			&item.Water, &item.Land, &item.Nitrogen)
		if err != nil {
			return fmt.Errorf("failed to scan portion: %w", err)
		}

		items = append(items, item)
	}

	meal.Items = items
	return rows.Err()
}
