package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type DatabaseService struct {
	db *sql.DB
}

func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseService{db: db}, nil
}

// UpdateConversionStatus moves a conversion to status. For completed
// conversions outputPath and metadata are stored as well.
func (d *DatabaseService) UpdateConversionStatus(ctx context.Context, conversionID int, status string, outputPath string, metadata map[string]interface{}) error {
	query, args := conversionStatusQuery(conversionID, status, outputPath, metadata, time.Now())
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

func conversionStatusQuery(conversionID int, status string, outputPath string, metadata map[string]interface{}, now time.Time) (string, []interface{}) {
	query := `UPDATE subtitle_conversions SET status = $1, updated_at = $2`
	args := []interface{}{status, now}
	argIndex := 3

	if status == StatusProcessing {
		query += fmt.Sprintf(`, started_at = $%d`, argIndex)
		args = append(args, now)
		argIndex++
	}

	if status == StatusCompleted {
		query += fmt.Sprintf(`, completed_at = $%d, output_s3_path = $%d`, argIndex, argIndex+1)
		args = append(args, now, outputPath)
		argIndex += 2

		if metadata != nil {
			metadataJSON, _ := json.Marshal(metadata)
			query += fmt.Sprintf(`, metadata = $%d`, argIndex)
			args = append(args, metadataJSON)
			argIndex++
		}
	}

	query += fmt.Sprintf(` WHERE id = $%d`, argIndex)
	args = append(args, conversionID)
	return query, args
}

// UpdateConversionError stores the failure text. For engine failures this
// is the engine's diagnostic output.
func (d *DatabaseService) UpdateConversionError(ctx context.Context, conversionID int, errorMsg string) error {
	query := `UPDATE subtitle_conversions SET error_message = $1, updated_at = $2 WHERE id = $3`
	_, err := d.db.ExecContext(ctx, query, errorMsg, time.Now(), conversionID)
	return err
}

func (d *DatabaseService) IncrementRetryCount(ctx context.Context, conversionID int) error {
	query := `UPDATE subtitle_conversions SET retry_count = retry_count + 1, updated_at = $1 WHERE id = $2`
	_, err := d.db.ExecContext(ctx, query, time.Now(), conversionID)
	return err
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}
