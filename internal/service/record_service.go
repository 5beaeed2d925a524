package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eegility/internal/domain"
	"eegility/internal/logger"
	"eegility/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	defaultDownloadTTL = 15 * time.Minute
	maxNotesLength     = 4000
	maxTags            = 32
)

// RecordService отвечает за выдачу EEG-записей с учётом прав доступа.
type RecordService struct {
	records     RecordStore
	perms       *PermissionService
	storage     ObjectStorage
	queue       AnalysisQueue
	clock       Clock
	downloadTTL time.Duration
	log         *zap.Logger
}

// NewRecordService creates the service. storage and queue may be nil when
// object storage or the analysis broker are not configured.
func NewRecordService(
	records RecordStore,
	perms *PermissionService,
	storage ObjectStorage,
	queue AnalysisQueue,
	log *zap.Logger,
) *RecordService {
	return &RecordService{
		records:     records,
		perms:       perms,
		storage:     storage,
		queue:       queue,
		clock:       systemClock,
		downloadTTL: defaultDownloadTTL,
		log:         logger.Named(log, "record"),
	}
}

func (s *RecordService) SetClock(clock Clock) {
	s.clock = clock
}

func (s *RecordService) SetDownloadTTL(ttl time.Duration) {
	if ttl > 0 {
		s.downloadTTL = ttl
	}
}

// ListVisible returns one page of the records the caller may view, newest
// first. Filters only narrow the visible set. Every row the store returns
// is classified again here and dropped if the policy does not confirm it.
func (s *RecordService) ListVisible(
	ctx context.Context,
	identity domain.Identity,
	filter domain.RecordFilter,
) (*domain.RecordPage, error) {
	if err := checkActive(identity); err != nil {
		return nil, err
	}

	timer := prometheus.NewTimer(metrics.ListDuration)
	defer timer.ObserveDuration()

	after, err := domain.DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}
	filter, err = normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	limit := filter.PageSize()
	rows, err := s.records.ListVisible(ctx, domain.VisibilityQuery{
		Identity: identity,
		Now:      s.clock(),
		Filter:   filter,
		After:    after,
		Limit:    limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	scanned := rows
	if len(scanned) > limit {
		scanned = scanned[:limit]
	}

	page := &domain.RecordPage{Items: make([]domain.RecordSummary, 0, len(scanned))}
	for i := range scanned {
		row := &scanned[i]
		accessType, permission, ok := ClassifyAccess(identity, &row.Record, row.Grant)
		if !ok {
			s.log.Warn("store returned a record outside the visible set",
				zap.String("user_id", identity.UserID),
				zap.String("record_id", row.Record.ID.String()),
			)
			continue
		}
		page.Items = append(page.Items, domain.RecordSummary{
			EegRecord:  row.Record,
			AccessType: accessType,
			Permission: permission,
		})
	}

	if len(rows) > limit {
		last := scanned[len(scanned)-1].Record
		page.NextCursor = domain.Cursor{UploadDate: last.UploadDate, ID: last.ID}.Encode()
	}
	return page, nil
}

func normalizeFilter(filter domain.RecordFilter) (domain.RecordFilter, error) {
	filter.SearchTerm = strings.TrimSpace(filter.SearchTerm)
	filter.Tags = normalizeTags(filter.Tags)
	if filter.Format != "" {
		format, err := domain.ParseFormat(string(filter.Format))
		if err != nil {
			return filter, err
		}
		filter.Format = format
	}
	return filter, nil
}

// normalizeTags обрезает пробелы, убирает пустые и повторяющиеся теги.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// Get returns a single record with the caller's access on it.
func (s *RecordService) Get(
	ctx context.Context,
	identity domain.Identity,
	recordID uuid.UUID,
) (*domain.RecordSummary, error) {
	return s.perms.EffectiveAccess(ctx, identity, recordID)
}

// DownloadURL выдаёт временную ссылку на скачивание файла записи.
func (s *RecordService) DownloadURL(
	ctx context.Context,
	identity domain.Identity,
	recordID uuid.UUID,
) (string, error) {
	record, err := s.perms.Authorize(ctx, identity, recordID, domain.ActionDownload)
	if err != nil {
		return "", err
	}
	if s.storage == nil {
		return "", fmt.Errorf("object storage is not configured")
	}

	url, err := s.storage.PresignGet(ctx, record.StorageKey, record.OriginalFilename, s.downloadTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}

	s.log.Info("download link issued",
		zap.String("user_id", identity.UserID),
		zap.String("record_id", record.ID.String()),
	)
	return url, nil
}

func (s *RecordService) UpdateMetadata(
	ctx context.Context,
	identity domain.Identity,
	recordID uuid.UUID,
	update domain.RecordUpdate,
) (*domain.EegRecord, error) {
	if _, err := s.perms.Authorize(ctx, identity, recordID, domain.ActionModify); err != nil {
		return nil, err
	}

	if update.Tags != nil {
		update.Tags = normalizeTags(update.Tags)
		if update.Tags == nil {
			update.Tags = []string{}
		}
		if len(update.Tags) > maxTags {
			return nil, domain.NewError(domain.KindValidation, "at most %d tags are allowed", maxTags)
		}
	}
	if update.Notes != nil && len([]rune(*update.Notes)) > maxNotesLength {
		return nil, domain.NewError(domain.KindValidation, "notes must be at most %d characters", maxNotesLength)
	}

	record, err := s.records.UpdateMetadata(ctx, recordID, update)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return record, nil
}

// Delete удаляет запись и файл в хранилище. Запросы на шаринг удаляются каскадно.
func (s *RecordService) Delete(ctx context.Context, identity domain.Identity, recordID uuid.UUID) error {
	record, err := s.perms.Authorize(ctx, identity, recordID, domain.ActionDelete)
	if err != nil {
		return err
	}

	if err := s.records.Delete(ctx, recordID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete record: %w", err)
	}

	if s.storage != nil && record.StorageKey != "" {
		if err := s.storage.DeleteObject(ctx, record.StorageKey); err != nil {
			s.log.Warn("failed to delete stored object",
				zap.String("record_id", record.ID.String()),
				zap.String("key", record.StorageKey),
				zap.Error(err),
			)
		}
	}

	s.log.Info("record deleted",
		zap.String("user_id", identity.UserID),
		zap.String("record_id", record.ID.String()),
	)
	return nil
}

// RequestAnalysis marks the record for ADHD analysis and hands the job to
// the external classifier. A request that is still outstanding is returned
// unchanged.
func (s *RecordService) RequestAnalysis(
	ctx context.Context,
	identity domain.Identity,
	recordID uuid.UUID,
) (*domain.AdhdAnalysis, error) {
	record, err := s.perms.Authorize(ctx, identity, recordID, domain.ActionModify)
	if err != nil {
		return nil, err
	}

	if a := record.AdhdAnalysis; a != nil && a.Requested && !a.Performed && a.Error == nil {
		return a, nil
	}

	now := s.clock()
	analysis := &domain.AdhdAnalysis{
		Requested:   true,
		RequestedAt: &now,
	}
	if err := s.records.SetAnalysis(ctx, recordID, analysis); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save analysis request: %w", err)
	}

	s.enqueue(domain.AnalysisJob{
		EegRecordID: record.ID,
		StorageKey:  record.StorageKey,
		Format:      record.Format,
		RequestedBy: identity.UserID,
		RequestedAt: now,
	})
	return analysis, nil
}

func (s *RecordService) GetAnalysis(
	ctx context.Context,
	identity domain.Identity,
	recordID uuid.UUID,
) (*domain.AdhdAnalysis, error) {
	record, err := s.perms.Authorize(ctx, identity, recordID, domain.ActionView)
	if err != nil {
		return nil, err
	}
	if record.AdhdAnalysis == nil {
		return &domain.AdhdAnalysis{}, nil
	}
	return record.AdhdAnalysis, nil
}

// Register creates the record for a file that is already in object storage.
// The caller becomes the owner; institution and department are taken from
// the caller's identity.
func (s *RecordService) Register(
	ctx context.Context,
	identity domain.Identity,
	input domain.NewEegRecord,
) (*domain.EegRecord, error) {
	if err := checkActive(identity); err != nil {
		return nil, err
	}

	input.Filename = strings.TrimSpace(input.Filename)
	input.StorageKey = strings.TrimSpace(input.StorageKey)
	if input.Filename == "" {
		return nil, domain.NewError(domain.KindValidation, "filename is required")
	}
	if input.StorageKey == "" {
		return nil, domain.NewError(domain.KindValidation, "storage_key is required")
	}
	if input.OriginalFilename == "" {
		input.OriginalFilename = input.Filename
	}

	format, err := domain.FormatFromFilename(input.OriginalFilename)
	if err != nil {
		return nil, err
	}

	tags := normalizeTags(input.Tags)
	if len(tags) > maxTags {
		return nil, domain.NewError(domain.KindValidation, "at most %d tags are allowed", maxTags)
	}
	if len([]rune(input.Notes)) > maxNotesLength {
		return nil, domain.NewError(domain.KindValidation, "notes must be at most %d characters", maxNotesLength)
	}

	size := input.SizeBytes
	if s.storage != nil {
		// Проверяем, что файл действительно загружен
		stored, err := s.storage.StatObject(ctx, input.StorageKey)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewError(domain.KindValidation, "object %q is not in storage", input.StorageKey)
			}
			return nil, fmt.Errorf("failed to check stored object: %w", err)
		}
		size = stored
	}
	if size < 0 {
		return nil, domain.NewError(domain.KindValidation, "size_bytes must not be negative")
	}

	record := &domain.EegRecord{
		ID:               uuid.New(),
		OwnerUserID:      identity.UserID,
		Institution:      identity.Institution,
		Department:       identity.Department,
		Filename:         input.Filename,
		OriginalFilename: input.OriginalFilename,
		Format:           format,
		SizeBytes:        size,
		UploadDate:       s.clock(),
		Tags:             tags,
		Notes:            input.Notes,
		SubjectID:        strings.TrimSpace(input.SubjectID),
		StorageKey:       input.StorageKey,
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}

	if err := s.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	s.log.Info("record registered",
		zap.String("user_id", identity.UserID),
		zap.String("record_id", record.ID.String()),
		zap.String("format", string(record.Format)),
	)
	return record, nil
}

func (s *RecordService) enqueue(job domain.AnalysisJob) {
	if s.queue == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultNotifyTimeout)
		defer cancel()
		if err := s.queue.EnqueueAnalysis(ctx, job); err != nil {
			s.log.Warn("failed to enqueue analysis",
				zap.String("record_id", job.EegRecordID.String()),
				zap.Error(err),
			)
		}
	}()
}
