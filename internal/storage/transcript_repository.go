package storage

import (
	"context"
	"fmt"

	"github.com/home-device-controller/backend/internal/storage/models"
)

// TranscriptRepository provides data access for voice transcript history.
type TranscriptRepository struct {
	BaseRepository
}

// NewTranscriptRepository creates a new transcript repository.
func NewTranscriptRepository(db *DB) *TranscriptRepository {
	return &TranscriptRepository{BaseRepository: NewBaseRepository(db)}
}

// Create appends a transcript. ID and CreatedAt are assigned when empty.
func (r *TranscriptRepository) Create(ctx context.Context, rec *models.TranscriptRecord) error {
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.Now()
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO transcripts (
			id, text, intent_kind, target_name, turn_on, result_kind, device_id, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Text, rec.IntentKind, rec.TargetName, rec.TurnOn,
		rec.ResultKind, rec.DeviceID, rec.Message, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting transcript: %w", err)
	}
	return nil
}

// Recent returns up to limit transcripts, newest first.
func (r *TranscriptRepository) Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, text, intent_kind, target_name, turn_on, result_kind, device_id, message, created_at
		FROM transcripts
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, clampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("querying transcripts: %w", err)
	}
	defer rows.Close()

	records := []models.TranscriptRecord{}
	for rows.Next() {
		var rec models.TranscriptRecord
		if err := rows.Scan(
			&rec.ID, &rec.Text, &rec.IntentKind, &rec.TargetName, &rec.TurnOn,
			&rec.ResultKind, &rec.DeviceID, &rec.Message, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
