package service

import (
	"context"
	"time"

	"eegility/internal/domain"

	"github.com/google/uuid"
)

// RecordStore persists EEG records. GetByID returns domain.ErrNotFound for
// unknown ids.
type RecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.EegRecord, error)
	Create(ctx context.Context, record *domain.EegRecord) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, update domain.RecordUpdate) (*domain.EegRecord, error)
	SetAnalysis(ctx context.Context, id uuid.UUID, analysis *domain.AdhdAnalysis) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListVisible(ctx context.Context, query domain.VisibilityQuery) ([]domain.VisibleRow, error)
}

// ShareStore persists sharing requests. Every status change goes through
// CompareAndSwapStatus; Create enforces the one-active-request-per-pair rule
// atomically and returns domain.ErrDuplicateShare on violation.
type ShareStore interface {
	Create(ctx context.Context, req *domain.SharingRequest, now time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SharingRequest, error)
	FindGrant(ctx context.Context, recordID uuid.UUID, userID string, now time.Time) (*domain.SharingRequest, error)
	CompareAndSwapStatus(ctx context.Context, change domain.StatusChange) (*domain.SharingRequest, error)
	ListIncoming(ctx context.Context, userID string) ([]domain.SharingRequest, error)
	ListOutgoing(ctx context.Context, userID string) ([]domain.SharingRequest, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]domain.SharingRequest, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// ShareNotifier receives lifecycle events after they are committed.
type ShareNotifier interface {
	NotifyShare(ctx context.Context, event domain.ShareEvent) error
}

type AnalysisQueue interface {
	EnqueueAnalysis(ctx context.Context, job domain.AnalysisJob) error
}

// ObjectStorage holds the EEG files themselves. StatObject returns
// domain.ErrNotFound for missing keys.
type ObjectStorage interface {
	PresignGet(ctx context.Context, key, downloadName string, ttl time.Duration) (string, error)
	StatObject(ctx context.Context, key string) (int64, error)
	DeleteObject(ctx context.Context, key string) error
}

// Clock возвращает текущее время; в тестах подменяется фиксированным.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
