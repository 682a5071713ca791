package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/atinyakov/kosync/internal/models"
	"go.uber.org/zap"
)

// SQLProgressRepository implements progress storage on a SQL database.
type SQLProgressRepository struct {
	// DB is the database handle for executing queries.
	DB  *sql.DB
	log *zap.Logger
}

// NewSQLProgressRepository creates a new SQLProgressRepository using the provided *sql.DB.
// A nil logger disables logging of skipped rows.
func NewSQLProgressRepository(db *sql.DB, log *zap.Logger) *SQLProgressRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLProgressRepository{DB: db, log: log}
}

// SaveProgress inserts the record or replaces every field of the existing
// record with the same (username, device_id, document) key.
func (r *SQLProgressRepository) SaveProgress(ctx context.Context, username string, p models.Progress) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO progress (username, device_id, document, percentage, progress, device, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username, device_id, document) DO UPDATE SET
			percentage = EXCLUDED.percentage,
			progress = EXCLUDED.progress,
			device = EXCLUDED.device,
			updated_at = EXCLUDED.updated_at
	`, username, p.DeviceID, p.Document, p.Percentage.String(), p.Progress, p.Device, p.Timestamp)
	if err != nil {
		return fmt.Errorf("SaveProgress: %w", err)
	}
	return nil
}

// DeviceProgress returns every device's record for document. Rows that do
// not form a valid record are logged and skipped.
func (r *SQLProgressRepository) DeviceProgress(ctx context.Context, username, document string) ([]models.Progress, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT device_id, percentage, document, progress, device, updated_at
		FROM progress WHERE username = $1 AND document = $2
	`, username, document)
	if err != nil {
		return nil, fmt.Errorf("DeviceProgress: %w", err)
	}
	defer rows.Close()

	records := []models.Progress{}
	for rows.Next() {
		var (
			p          models.Progress
			percentage string
		)
		if err := rows.Scan(&p.DeviceID, &percentage, &p.Document, &p.Progress, &p.Device, &p.Timestamp); err != nil {
			r.log.Warn("skipping unreadable progress row", zap.Error(err))
			continue
		}
		p.Percentage = json.Number(percentage)
		if err := p.Validate(); err != nil {
			r.log.Warn("skipping invalid progress row",
				zap.String("device", p.DeviceID), zap.Error(err))
			continue
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DeviceProgress: %w", err)
	}
	return records, nil
}

// Stats counts users and stored records.
func (r *SQLProgressRepository) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	err := r.DB.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM users), (SELECT COUNT(*) FROM progress)`,
	).Scan(&st.Users, &st.Records)
	if err != nil {
		return st, fmt.Errorf("Stats: %w", err)
	}
	return st, nil
}
