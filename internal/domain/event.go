package domain

import (
	"time"

	"github.com/google/uuid"
)

type ShareEventType string

const (
	ShareEventCreated  ShareEventType = "share.created"
	ShareEventAccepted ShareEventType = "share.accepted"
	ShareEventRejected ShareEventType = "share.rejected"
	ShareEventRevoked  ShareEventType = "share.revoked"
)

// ShareEvent is published to the notification service. Delivery is best effort.
type ShareEvent struct {
	Type             ShareEventType `json:"type"`
	RequestID        uuid.UUID      `json:"request_id"`
	EegRecordID      uuid.UUID      `json:"eeg_record_id"`
	SharedByUserID   string         `json:"shared_by_user_id"`
	SharedWithUserID string         `json:"shared_with_user_id"`
	Permission       Permission     `json:"permission"`
	Message          string         `json:"message,omitempty"`
	OccurredAt       time.Time      `json:"occurred_at"`
}

func NewShareEvent(t ShareEventType, req *SharingRequest, at time.Time) ShareEvent {
	return ShareEvent{
		Type:             t,
		RequestID:        req.ID,
		EegRecordID:      req.EegRecordID,
		SharedByUserID:   req.SharedByUserID,
		SharedWithUserID: req.SharedWithUserID,
		Permission:       req.Permission,
		Message:          req.Message,
		OccurredAt:       at,
	}
}

// AnalysisJob asks the external classifier to process one record.
type AnalysisJob struct {
	EegRecordID uuid.UUID `json:"eeg_record_id"`
	StorageKey  string    `json:"storage_key"`
	Format      Format    `json:"format"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}
