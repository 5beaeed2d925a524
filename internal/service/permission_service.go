package service

import (
	"context"
	"errors"
	"fmt"

	"eegility/internal/domain"
	"eegility/internal/logger"
	"eegility/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PermissionService представляет сервис для проверки прав доступа к EEG-записям.
// Решения не кэшируются: каждое обращение читает актуальное состояние шаринга.
type PermissionService struct {
	records RecordStore
	shares  ShareStore
	clock   Clock
	log     *zap.Logger
}

func NewPermissionService(records RecordStore, shares ShareStore, log *zap.Logger) *PermissionService {
	return &PermissionService{
		records: records,
		shares:  shares,
		clock:   systemClock,
		log:     logger.Named(log, "permission"),
	}
}

// SetClock подменяет источник времени.
func (s *PermissionService) SetClock(clock Clock) {
	s.clock = clock
}

// lookupGrant fetches the caller's live grant only when ownership, role and
// department rules cannot decide on their own.
func (s *PermissionService) lookupGrant(
	ctx context.Context,
	identity domain.Identity,
	record *domain.EegRecord,
) (*domain.SharingRequest, error) {
	if !needsGrant(identity, record) {
		return nil, nil
	}
	grant, err := s.shares.FindGrant(ctx, record.ID, identity.UserID, s.clock())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// CheckPermission проверяет права доступа для конкретной операции.
func (s *PermissionService) CheckPermission(
	ctx context.Context,
	identity domain.Identity,
	recordID uuid.UUID,
	action domain.Action,
) (bool, error) {
	if err := checkActive(identity); err != nil {
		return false, err
	}

	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return false, err
	}

	grant, err := s.lookupGrant(ctx, identity, record)
	if err != nil {
		return false, err
	}

	allowed := CanAccess(identity, record, action, grant, s.clock())
	metrics.AccessDecisions.WithLabelValues(string(action), metrics.Outcome(allowed)).Inc()
	return allowed, nil
}

// Authorize returns the record when the caller may perform action on it.
// A caller who cannot even view the record gets domain.ErrNotFound, so its
// existence is not confirmed; a caller who can view it but not perform the
// action gets domain.ErrForbidden.
func (s *PermissionService) Authorize(
	ctx context.Context,
	identity domain.Identity,
	recordID uuid.UUID,
	action domain.Action,
) (*domain.EegRecord, error) {
	if err := checkActive(identity); err != nil {
		return nil, err
	}

	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	grant, err := s.lookupGrant(ctx, identity, record)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	allowed := CanAccess(identity, record, action, grant, now)
	metrics.AccessDecisions.WithLabelValues(string(action), metrics.Outcome(allowed)).Inc()
	if allowed {
		return record, nil
	}

	s.log.Debug("access denied",
		zap.String("user_id", identity.UserID),
		zap.String("record_id", recordID.String()),
		zap.String("action", string(action)),
	)

	if action != domain.ActionView && CanAccess(identity, record, domain.ActionView, grant, now) {
		return nil, domain.NewError(domain.KindForbidden, "%s is not permitted on this record", action)
	}
	return nil, domain.ErrNotFound
}

// EffectiveAccess reports how the record is visible to the caller.
func (s *PermissionService) EffectiveAccess(
	ctx context.Context,
	identity domain.Identity,
	recordID uuid.UUID,
) (*domain.RecordSummary, error) {
	if err := checkActive(identity); err != nil {
		return nil, err
	}

	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	grant, err := s.lookupGrant(ctx, identity, record)
	if err != nil {
		return nil, err
	}

	var permission *domain.Permission
	if grant.GrantsAccessTo(record.ID, identity.UserID, s.clock()) {
		permission = &grant.Permission
	}

	accessType, effective, ok := ClassifyAccess(identity, record, permission)
	if !ok {
		return nil, domain.ErrNotFound
	}

	return &domain.RecordSummary{
		EegRecord:  *record,
		AccessType: accessType,
		Permission: effective,
	}, nil
}
