package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"eegility/internal/domain"
	"eegility/internal/logger"
	"eegility/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxShareMessageLength = 1000
	defaultNotifyTimeout  = 5 * time.Second
)

// CreateShareInput describes a new sharing request. Recipient is either a
// user id or an email address.
type CreateShareInput struct {
	RecordID   uuid.UUID         `json:"eeg_record_id"`
	Recipient  string            `json:"recipient"`
	Permission domain.Permission `json:"permission"`
	Message    string            `json:"message"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// ShareService управляет жизненным циклом запросов на шаринг EEG-записей.
type ShareService struct {
	shares        ShareStore
	records       RecordStore
	users         UserStore
	perms         *PermissionService
	notifier      ShareNotifier
	clock         Clock
	notifyTimeout time.Duration
	log           *zap.Logger
}

func NewShareService(
	shares ShareStore,
	records RecordStore,
	users UserStore,
	perms *PermissionService,
	notifier ShareNotifier,
	log *zap.Logger,
) *ShareService {
	return &ShareService{
		shares:        shares,
		records:       records,
		users:         users,
		perms:         perms,
		notifier:      notifier,
		clock:         systemClock,
		notifyTimeout: defaultNotifyTimeout,
		log:           logger.Named(log, "share"),
	}
}

// SetClock подменяет источник времени.
func (s *ShareService) SetClock(clock Clock) {
	s.clock = clock
}

func (s *ShareService) CreateShare(
	ctx context.Context,
	sharer domain.Identity,
	input CreateShareInput,
) (*domain.SharingRequest, error) {
	if err := checkActive(sharer); err != nil {
		return nil, err
	}

	// Запись должна быть видна, а шаринг разрешён
	record, err := s.perms.Authorize(ctx, sharer, input.RecordID, domain.ActionShare)
	if err != nil {
		return nil, err
	}

	recipient, err := s.resolveRecipient(ctx, input.Recipient)
	if err != nil {
		return nil, err
	}
	if recipient.ID == sharer.UserID {
		return nil, domain.NewError(domain.KindValidation, "cannot share a record with yourself")
	}
	if recipient.ID == record.OwnerUserID {
		return nil, domain.NewError(domain.KindValidation, "recipient already owns this record")
	}

	if !input.Permission.Valid() {
		return nil, domain.NewError(domain.KindValidation, "unknown permission %q", input.Permission)
	}

	message := strings.TrimSpace(input.Message)
	if utf8.RuneCountInString(message) > MaxShareMessageLength {
		return nil, domain.NewError(domain.KindValidation,
			"message must be at most %d characters", MaxShareMessageLength)
	}

	now := s.clock()
	var expiresAt *time.Time
	if input.ExpiresAt != nil {
		if input.ExpiresAt.Before(now) {
			return nil, domain.NewError(domain.KindValidation, "expires_at is in the past")
		}
		t := input.ExpiresAt.UTC()
		expiresAt = &t
	}

	req := &domain.SharingRequest{
		ID:               uuid.New(),
		EegRecordID:      record.ID,
		SharedByUserID:   sharer.UserID,
		SharedWithUserID: recipient.ID,
		Permission:       input.Permission,
		Status:           domain.ShareStatusPending,
		Message:          message,
		RequestedAt:      now,
		ExpiresAt:        expiresAt,
	}

	if err := s.shares.Create(ctx, req, now); err != nil {
		if errors.Is(err, domain.ErrDuplicateShare) {
			metrics.ShareConflicts.WithLabelValues("create", string(domain.KindDuplicateShare)).Inc()
			return nil, err
		}
		return nil, fmt.Errorf("failed to create sharing request: %w", err)
	}

	metrics.ShareTransitions.WithLabelValues("none", string(domain.ShareStatusPending)).Inc()
	s.log.Info("sharing request created",
		zap.String("request_id", req.ID.String()),
		zap.String("record_id", req.EegRecordID.String()),
		zap.String("shared_by", req.SharedByUserID),
		zap.String("shared_with", req.SharedWithUserID),
		zap.String("permission", string(req.Permission)),
	)

	s.notify(domain.ShareEventCreated, req, now)
	return req, nil
}

// resolveRecipient ищет получателя по email или по идентификатору.
func (s *ShareService) resolveRecipient(ctx context.Context, recipient string) (*domain.User, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, domain.NewError(domain.KindValidation, "recipient is required")
	}

	var (
		user *domain.User
		err  error
	)
	if strings.Contains(recipient, "@") {
		user, err = s.users.GetByEmail(ctx, recipient)
	} else {
		user, err = s.users.GetByID(ctx, recipient)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.KindValidation, "recipient not found")
		}
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	if !user.IsActive {
		return nil, domain.NewError(domain.KindValidation, "recipient account is inactive")
	}
	return user, nil
}

// RespondToShare accepts or rejects a pending request addressed to the caller.
func (s *ShareService) RespondToShare(
	ctx context.Context,
	recipient domain.Identity,
	requestID uuid.UUID,
	action domain.ShareAction,
) (*domain.SharingRequest, error) {
	if err := checkActive(recipient); err != nil {
		return nil, err
	}

	var (
		next      domain.ShareStatus
		eventType domain.ShareEventType
	)
	switch action {
	case domain.ShareActionAccept:
		next, eventType = domain.ShareStatusAccepted, domain.ShareEventAccepted
	case domain.ShareActionReject:
		next, eventType = domain.ShareStatusRejected, domain.ShareEventRejected
	default:
		return nil, domain.NewError(domain.KindValidation, "unknown action %q", action)
	}

	req, err := s.shares.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SharedWithUserID != recipient.UserID {
		if req.SharedByUserID == recipient.UserID {
			return nil, domain.NewError(domain.KindForbidden, "only the recipient can respond to a sharing request")
		}
		return nil, domain.ErrNotFound
	}

	now := s.clock()
	switch status := req.EffectiveStatus(now); status {
	case domain.ShareStatusPending:
	case domain.ShareStatusExpired:
		s.materializeExpired(ctx, req, now)
		return nil, domain.NewError(domain.KindInvalidTransition, "sharing request has expired")
	default:
		return nil, domain.NewError(domain.KindInvalidTransition, "sharing request is already %s", status)
	}

	updated, err := s.transition(ctx, string(action), domain.StatusChange{
		RequestID: req.ID,
		Expected:  domain.ShareStatusPending,
		Next:      next,
		At:        now,
	})
	if err != nil {
		return nil, err
	}

	s.notify(eventType, updated, now)
	return updated, nil
}

// RevokeShare withdraws a pending request or ends an accepted grant. The
// sharer, the record owner and admins may revoke.
func (s *ShareService) RevokeShare(
	ctx context.Context,
	caller domain.Identity,
	requestID uuid.UUID,
) (*domain.SharingRequest, error) {
	if err := checkActive(caller); err != nil {
		return nil, err
	}

	req, err := s.shares.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.SharedByUserID != caller.UserID && !caller.IsAdmin() {
		record, err := s.records.GetByID(ctx, req.EegRecordID)
		if err != nil {
			return nil, err
		}
		if record.OwnerUserID != caller.UserID {
			if req.SharedWithUserID == caller.UserID {
				return nil, domain.NewError(domain.KindForbidden, "the recipient cannot revoke a sharing request")
			}
			return nil, domain.ErrNotFound
		}
	}

	now := s.clock()
	switch status := req.EffectiveStatus(now); status {
	case domain.ShareStatusPending, domain.ShareStatusAccepted:
	default:
		return nil, domain.NewError(domain.KindInvalidTransition, "cannot revoke a %s sharing request", status)
	}

	updated, err := s.transition(ctx, "revoke", domain.StatusChange{
		RequestID: req.ID,
		Expected:  req.Status,
		Next:      domain.ShareStatusRevoked,
		At:        now,
	})
	if err != nil {
		return nil, err
	}

	s.notify(domain.ShareEventRevoked, updated, now)
	return updated, nil
}

// transition применяет единственный CAS-переход статуса.
func (s *ShareService) transition(
	ctx context.Context,
	operation string,
	change domain.StatusChange,
) (*domain.SharingRequest, error) {
	if !domain.CanTransition(change.Expected, change.Next) {
		return nil, domain.NewError(domain.KindInvalidTransition,
			"cannot move sharing request from %s to %s", change.Expected, change.Next)
	}

	updated, err := s.shares.CompareAndSwapStatus(ctx, change)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.ShareConflicts.WithLabelValues(operation, string(domain.KindConflict)).Inc()
			return nil, err
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update sharing request: %w", err)
	}

	metrics.ShareTransitions.WithLabelValues(string(change.Expected), string(change.Next)).Inc()
	s.log.Info("sharing request status changed",
		zap.String("request_id", change.RequestID.String()),
		zap.String("from", string(change.Expected)),
		zap.String("to", string(change.Next)),
	)
	return updated, nil
}

// materializeExpired записывает статус expired для просроченного запроса.
// Ошибки не фатальны: истечение и так вычисляется при чтении.
func (s *ShareService) materializeExpired(ctx context.Context, req *domain.SharingRequest, now time.Time) {
	if req.Status == domain.ShareStatusExpired {
		return
	}
	_, err := s.shares.CompareAndSwapStatus(ctx, domain.StatusChange{
		RequestID: req.ID,
		Expected:  req.Status,
		Next:      domain.ShareStatusExpired,
		At:        now,
	})
	if err != nil {
		s.log.Debug("failed to materialize expired request",
			zap.String("request_id", req.ID.String()),
			zap.Error(err),
		)
		return
	}
	metrics.ShareTransitions.WithLabelValues(string(req.Status), string(domain.ShareStatusExpired)).Inc()
}

// GetShare returns a request to its sharer, its recipient or an admin.
func (s *ShareService) GetShare(
	ctx context.Context,
	caller domain.Identity,
	requestID uuid.UUID,
) (*domain.SharingRequest, error) {
	if err := checkActive(caller); err != nil {
		return nil, err
	}

	req, err := s.shares.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SharedByUserID != caller.UserID && req.SharedWithUserID != caller.UserID && !caller.IsAdmin() {
		return nil, domain.ErrNotFound
	}

	view := req.WithEffectiveStatus(s.clock())
	return &view, nil
}

func (s *ShareService) ListIncoming(ctx context.Context, caller domain.Identity) ([]domain.SharingRequest, error) {
	if err := checkActive(caller); err != nil {
		return nil, err
	}
	requests, err := s.shares.ListIncoming(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming requests: %w", err)
	}
	return s.effective(requests), nil
}

func (s *ShareService) ListOutgoing(ctx context.Context, caller domain.Identity) ([]domain.SharingRequest, error) {
	if err := checkActive(caller); err != nil {
		return nil, err
	}
	requests, err := s.shares.ListOutgoing(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outgoing requests: %w", err)
	}
	return s.effective(requests), nil
}

// ListRecordShares returns every request on a record to callers who may share it.
func (s *ShareService) ListRecordShares(
	ctx context.Context,
	caller domain.Identity,
	recordID uuid.UUID,
) ([]domain.SharingRequest, error) {
	if _, err := s.perms.Authorize(ctx, caller, recordID, domain.ActionShare); err != nil {
		return nil, err
	}
	requests, err := s.shares.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list record shares: %w", err)
	}
	return s.effective(requests), nil
}

func (s *ShareService) effective(requests []domain.SharingRequest) []domain.SharingRequest {
	now := s.clock()
	out := make([]domain.SharingRequest, 0, len(requests))
	for _, req := range requests {
		out = append(out, req.WithEffectiveStatus(now))
	}
	return out
}

// ExpireOverdue сохраняет статус expired для всех просроченных запросов.
// Доступ от этого не зависит, это только оптимизация чтения.
func (s *ShareService) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.shares.ExpireOverdue(ctx, s.clock())
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue requests: %w", err)
	}
	if n > 0 {
		metrics.SharesExpired.Add(float64(n))
		s.log.Info("expired overdue sharing requests", zap.Int64("count", n))
	}
	return n, nil
}

// CleanupExpired is the admin-triggered form of ExpireOverdue.
func (s *ShareService) CleanupExpired(ctx context.Context, caller domain.Identity) (int64, error) {
	if err := checkActive(caller); err != nil {
		return 0, err
	}
	if !caller.IsAdmin() {
		return 0, domain.NewError(domain.KindForbidden, "only admins can clean up expired requests")
	}
	return s.ExpireOverdue(ctx)
}

// notify отправляет событие асинхронно; ответ клиенту не ждёт доставки.
func (s *ShareService) notify(eventType domain.ShareEventType, req *domain.SharingRequest, at time.Time) {
	if s.notifier == nil {
		return
	}
	event := domain.NewShareEvent(eventType, req, at)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyShare(ctx, event); err != nil {
			s.log.Warn("failed to publish share event",
				zap.String("type", string(event.Type)),
				zap.String("request_id", event.RequestID.String()),
				zap.Error(err),
			)
		}
	}()
}
