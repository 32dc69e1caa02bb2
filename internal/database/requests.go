// Package database defines the insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ClassificationRecord is one finished classify request.
type ClassificationRecord struct {
	RequestID  string
	Label      string
	StatusCode int
	Duration   time.Duration
	CreatedAt  time.Time
}

type DailyLabelStats struct {
	Date         string
	Label        string
	RequestCount uint64
	ErrorCount   uint64
	TotalTime    int64
}

// SaveClassifications saves the per-request rows and updates the per-label
// daily aggregates in one transaction.
func SaveClassifications(ctx context.Context, db *sql.DB, records map[string]*ClassificationRecord, log *zap.SugaredLogger) error {
	if len(records) == 0 {
		return nil
	}

	requestSQLStr := `INSERT INTO classification_request (
            request_id, label, status_code, total_time, created_at
        ) VALUES`

	statsSQLStr := `INSERT INTO daily_label_stats (
		date, label, request_count, error_count, total_time
	) VALUES`

	today := time.Now().Format("2006-01-02")

	aggregated := make(map[string]*DailyLabelStats)

	requestVals := []any{}
	statsVals := []any{}

	for id, rec := range records {
		key := rec.Label
		if key == "" {
			key = "__error__"
		}
		if _, ok := aggregated[key]; !ok {
			aggregated[key] = &DailyLabelStats{Date: today, Label: key}
		}
		existing := aggregated[key]
		existing.RequestCount += 1
		existing.TotalTime += rec.Duration.Milliseconds()
		if rec.StatusCode >= 400 {
			existing.ErrorCount += 1
		}
		requestSQLStr += "(?, ?, ?, ?, ?),"
		requestVals = append(requestVals,
			id, rec.Label, rec.StatusCode,
			rec.Duration.Milliseconds(), rec.CreatedAt,
		)
	}

	for _, val := range aggregated {
		statsSQLStr += "(?, ?, ?, ?, ?),"
		statsVals = append(statsVals, val.Date, val.Label, val.RequestCount, val.ErrorCount, val.TotalTime)
	}

	requestSQLStr = strings.TrimSuffix(requestSQLStr, ",")
	statsSQLStr = strings.TrimSuffix(statsSQLStr, ",")
	statsSQLStr += ` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		error_count = error_count + VALUES(error_count),
		total_time = total_time + VALUES(total_time)`

	err := ExecuteTransaction(ctx, db, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, requestSQLStr, requestVals...)
			if err != nil {
				return fmt.Errorf("failed to save classification requests: %w", err)
			}
			return nil
		},
		func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, statsSQLStr, statsVals...)
			if err != nil {
				return fmt.Errorf("failed to save daily label stats: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	log.Debugw("Saved classification records", "requests", len(records), "labels", len(aggregated))
	return nil
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, db *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
