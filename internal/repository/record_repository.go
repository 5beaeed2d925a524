package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eegility/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const recordColumns = `
        r.id, r.owner_user_id, r.institution, r.department, r.filename,
        r.original_filename, r.format, r.size_bytes, r.upload_date, r.tags,
        r.notes, r.subject_id, r.storage_key, r.adhd_analysis`

type RecordRepository struct {
	db *sqlx.DB
}

func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.EegRecord, error) {
	var record domain.EegRecord
	query := `SELECT ` + recordColumns + ` FROM eeg_records r WHERE r.id = $1`

	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *RecordRepository) Create(ctx context.Context, record *domain.EegRecord) error {
	query := `
        INSERT INTO eeg_records (
            id, owner_user_id, institution, department, filename,
            original_filename, format, size_bytes, upload_date, tags,
            notes, subject_id, storage_key, adhd_analysis
        ) VALUES (
            :id, :owner_user_id, :institution, :department, :filename,
            :original_filename, :format, :size_bytes, :upload_date, :tags,
            :notes, :subject_id, :storage_key, :adhd_analysis
        )`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// UpdateMetadata меняет только теги и заметки; nil означает «не менять».
func (r *RecordRepository) UpdateMetadata(
	ctx context.Context,
	id uuid.UUID,
	update domain.RecordUpdate,
) (*domain.EegRecord, error) {
	var tags any
	if update.Tags != nil {
		tags = pq.Array(update.Tags)
	}

	query := `
        UPDATE eeg_records r
        SET tags = COALESCE($2::text[], r.tags),
            notes = COALESCE($3::text, r.notes)
        WHERE r.id = $1
        RETURNING ` + recordColumns

	var record domain.EegRecord
	if err := r.db.GetContext(ctx, &record, query, id, tags, update.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *RecordRepository) SetAnalysis(ctx context.Context, id uuid.UUID, analysis *domain.AdhdAnalysis) error {
	result, err := r.db.ExecContext(ctx, `UPDATE eeg_records SET adhd_analysis = $2 WHERE id = $1`, id, analysis)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// Delete удаляет запись; запросы на шаринг удаляются каскадом по внешнему ключу.
func (r *RecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM eeg_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

type visibleRow struct {
	domain.EegRecord
	GrantPermission *string `db:"grant_permission"`
}

func (r *RecordRepository) ListVisible(ctx context.Context, q domain.VisibilityQuery) ([]domain.VisibleRow, error) {
	query, args := buildVisibilityQuery(q)

	var rows []visibleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]domain.VisibleRow, 0, len(rows))
	for _, row := range rows {
		v := domain.VisibleRow{Record: row.EegRecord}
		if row.GrantPermission != nil {
			p := domain.Permission(*row.GrantPermission)
			v.Grant = &p
		}
		out = append(out, v)
	}
	return out, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
