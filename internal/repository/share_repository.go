package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eegility/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const shareColumns = `
        id, eeg_record_id, shared_by_user_id, shared_with_user_id, permission,
        status, message, requested_at, accepted_at, rejected_at, revoked_at,
        expired_at, expires_at`

// uniqueViolation is the Postgres error code raised by the partial unique
// index on active (record, recipient) pairs.
const uniqueViolation = "23505"

type ShareRepository struct {
	db *sqlx.DB
}

func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// Create вставляет запрос на шаринг. Строка записи блокируется на время
// транзакции, поэтому создания по одной записи выполняются последовательно.
func (r *ShareRepository) Create(ctx context.Context, req *domain.SharingRequest, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked uuid.UUID
	err = tx.GetContext(ctx, &locked, `SELECT id FROM eeg_records WHERE id = $1 FOR UPDATE`, req.EegRecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to lock record: %w", err)
	}

	// Просроченные, но ещё не помеченные запросы освобождают слот
	_, err = tx.ExecContext(ctx, `
        UPDATE sharing_requests
        SET status = 'expired', expired_at = $3
        WHERE eeg_record_id = $1
          AND shared_with_user_id = $2
          AND status IN ('pending', 'accepted')
          AND expires_at IS NOT NULL
          AND expires_at < $3`,
		req.EegRecordID, req.SharedWithUserID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to expire stale requests: %w", err)
	}

	var active int
	err = tx.GetContext(ctx, &active, `
        SELECT COUNT(*) FROM sharing_requests
        WHERE eeg_record_id = $1
          AND shared_with_user_id = $2
          AND status IN ('pending', 'accepted')`,
		req.EegRecordID, req.SharedWithUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to check active requests: %w", err)
	}
	if active > 0 {
		return domain.ErrDuplicateShare
	}

	_, err = tx.NamedExecContext(ctx, `
        INSERT INTO sharing_requests (`+shareColumns+`)
        VALUES (
            :id, :eeg_record_id, :shared_by_user_id, :shared_with_user_id, :permission,
            :status, :message, :requested_at, :accepted_at, :rejected_at, :revoked_at,
            :expired_at, :expires_at
        )`, req)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDuplicateShare
		}
		return fmt.Errorf("failed to insert sharing request: %w", err)
	}

	return tx.Commit()
}

func (r *ShareRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SharingRequest, error) {
	var req domain.SharingRequest
	query := `SELECT ` + shareColumns + ` FROM sharing_requests WHERE id = $1`

	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindGrant returns the live accepted grant for the pair, preferring
// view_download, or nil when there is none.
func (r *ShareRepository) FindGrant(
	ctx context.Context,
	recordID uuid.UUID,
	userID string,
	now time.Time,
) (*domain.SharingRequest, error) {
	var req domain.SharingRequest
	query := `
        SELECT ` + shareColumns + ` FROM sharing_requests
        WHERE eeg_record_id = $1
          AND shared_with_user_id = $2
          AND status = 'accepted'
          AND (expires_at IS NULL OR expires_at >= $3)
        ORDER BY (permission = 'view_download') DESC, accepted_at DESC
        LIMIT 1`

	if err := r.db.GetContext(ctx, &req, query, recordID, userID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// CompareAndSwapStatus is the only way a status changes. The update matches
// on the expected status, so of two concurrent transitions from the same
// state exactly one succeeds; the other gets domain.ErrConflict.
func (r *ShareRepository) CompareAndSwapStatus(
	ctx context.Context,
	change domain.StatusChange,
) (*domain.SharingRequest, error) {
	query := `
        UPDATE sharing_requests
        SET status      = $3::text,
            accepted_at = CASE WHEN $3::text = 'accepted' THEN $4::timestamptz ELSE accepted_at END,
            rejected_at = CASE WHEN $3::text = 'rejected' THEN $4::timestamptz ELSE rejected_at END,
            revoked_at  = CASE WHEN $3::text = 'revoked' THEN $4::timestamptz ELSE revoked_at END,
            expired_at  = CASE WHEN $3::text = 'expired' THEN $4::timestamptz ELSE expired_at END
        WHERE id = $1 AND status = $2
        RETURNING ` + shareColumns

	var req domain.SharingRequest
	err := r.db.GetContext(ctx, &req, query, change.RequestID, change.Expected, change.Next, change.At)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	// Ничего не обновилось: либо запроса нет, либо статус уже другой
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM sharing_requests WHERE id = $1)`, change.RequestID); err != nil {
		return nil, fmt.Errorf("failed to check request existence: %w", err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrConflict
}

func (r *ShareRepository) ListIncoming(ctx context.Context, userID string) ([]domain.SharingRequest, error) {
	return r.list(ctx, `shared_with_user_id = $1`, userID)
}

func (r *ShareRepository) ListOutgoing(ctx context.Context, userID string) ([]domain.SharingRequest, error) {
	return r.list(ctx, `shared_by_user_id = $1`, userID)
}

func (r *ShareRepository) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]domain.SharingRequest, error) {
	return r.list(ctx, `eeg_record_id = $1`, recordID)
}

func (r *ShareRepository) list(ctx context.Context, where string, arg any) ([]domain.SharingRequest, error) {
	requests := []domain.SharingRequest{}
	query := `
        SELECT ` + shareColumns + ` FROM sharing_requests
        WHERE ` + where + `
        ORDER BY requested_at DESC, id`

	if err := r.db.SelectContext(ctx, &requests, query, arg); err != nil {
		return nil, err
	}
	return requests, nil
}

// ExpireOverdue помечает просроченными все активные запросы с истёкшим сроком.
func (r *ShareRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
        UPDATE sharing_requests
        SET status = 'expired', expired_at = $1
        WHERE status IN ('pending', 'accepted')
          AND expires_at IS NOT NULL
          AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
