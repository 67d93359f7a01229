package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/home-device-controller/backend/internal/storage/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// CommandLogRepository provides data access for the command audit log.
type CommandLogRepository struct {
	BaseRepository
}

// NewCommandLogRepository creates a new command log repository.
func NewCommandLogRepository(db *DB) *CommandLogRepository {
	return &CommandLogRepository{BaseRepository: NewBaseRepository(db)}
}

// Create appends a record. ID and CreatedAt are assigned when empty.
func (r *CommandLogRepository) Create(ctx context.Context, rec *models.CommandRecord) error {
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.Now()
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO command_log (
			id, device_id, external_uid, command, value_json, success, error, bulk_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.DeviceID, rec.ExternalUID, rec.Command, rec.ValueJSON,
		rec.Success, rec.Error, rec.BulkID, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting command record: %w", err)
	}
	return nil
}

// List returns matching records, newest first.
func (r *CommandLogRepository) List(ctx context.Context, f models.CommandFilter) ([]models.CommandRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.BulkID != "" {
		where = append(where, "bulk_id = ?")
		args = append(args, f.BulkID)
	}

	query := `
		SELECT id, device_id, external_uid, command, value_json, success, error, bulk_id, created_at
		FROM command_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit, defaultHistoryLimit, maxHistoryLimit))

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	records := []models.CommandRecord{}
	for rows.Next() {
		var rec models.CommandRecord
		if err := rows.Scan(
			&rec.ID, &rec.DeviceID, &rec.ExternalUID, &rec.Command, &rec.ValueJSON,
			&rec.Success, &rec.Error, &rec.BulkID, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning command record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes all but the newest keep records and returns how many were removed.
func (r *CommandLogRepository) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := r.DB().ExecContext(ctx, `
		DELETE FROM command_log WHERE id NOT IN (
			SELECT id FROM command_log ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning command log: %w", err)
	}
	return res.RowsAffected()
}
