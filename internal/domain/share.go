package domain

import (
	"time"

	"github.com/google/uuid"
)

type Permission string
type ShareStatus string
type ShareAction string

const (
	PermissionViewOnly     Permission = "view_only"
	PermissionViewDownload Permission = "view_download"

	ShareStatusPending  ShareStatus = "pending"
	ShareStatusAccepted ShareStatus = "accepted"
	ShareStatusRejected ShareStatus = "rejected"
	ShareStatusRevoked  ShareStatus = "revoked"
	ShareStatusExpired  ShareStatus = "expired"

	ShareActionAccept ShareAction = "accept"
	ShareActionReject ShareAction = "reject"
)

func (p Permission) Valid() bool {
	return p == PermissionViewOnly || p == PermissionViewDownload
}

func (s ShareStatus) Terminal() bool {
	switch s {
	case ShareStatusRejected, ShareStatusRevoked, ShareStatusExpired:
		return true
	}
	return false
}

// Active reports whether a request in this status occupies the
// (record, recipient) slot.
func (s ShareStatus) Active() bool {
	return s == ShareStatusPending || s == ShareStatusAccepted
}

var transitions = map[ShareStatus][]ShareStatus{
	ShareStatusPending:  {ShareStatusAccepted, ShareStatusRejected, ShareStatusRevoked, ShareStatusExpired},
	ShareStatusAccepted: {ShareStatusRevoked, ShareStatusExpired},
}

// CanTransition проверяет допустимость перехода. Из терминальных
// статусов выхода нет.
func CanTransition(from, to ShareStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SharingRequest is an owner's offer of access to one EEG record for one recipient.
type SharingRequest struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	EegRecordID      uuid.UUID   `json:"eeg_record_id" db:"eeg_record_id"`
	SharedByUserID   string      `json:"shared_by_user_id" db:"shared_by_user_id"`
	SharedWithUserID string      `json:"shared_with_user_id" db:"shared_with_user_id"`
	Permission       Permission  `json:"permission" db:"permission"`
	Status           ShareStatus `json:"status" db:"status"`
	Message          string      `json:"message" db:"message"`
	RequestedAt      time.Time   `json:"requested_at" db:"requested_at"`
	AcceptedAt       *time.Time  `json:"accepted_at,omitempty" db:"accepted_at"`
	RejectedAt       *time.Time  `json:"rejected_at,omitempty" db:"rejected_at"`
	RevokedAt        *time.Time  `json:"revoked_at,omitempty" db:"revoked_at"`
	ExpiredAt        *time.Time  `json:"expired_at,omitempty" db:"expired_at"`
	ExpiresAt        *time.Time  `json:"expires_at,omitempty" db:"expires_at"`
}

// Overdue reports whether the request's validity window has closed at now.
// The window includes ExpiresAt itself.
func (s *SharingRequest) Overdue(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// EffectiveStatus is the status as seen at now: an overdue pending or
// accepted request reads as expired even if no sweep has stored it yet.
func (s *SharingRequest) EffectiveStatus(now time.Time) ShareStatus {
	if s.Status.Active() && s.Overdue(now) {
		return ShareStatusExpired
	}
	return s.Status
}

// GrantsAccessTo reports whether the request is a live grant for the
// given record and user.
func (s *SharingRequest) GrantsAccessTo(recordID uuid.UUID, userID string, now time.Time) bool {
	return s != nil &&
		s.EegRecordID == recordID &&
		s.SharedWithUserID == userID &&
		s.EffectiveStatus(now) == ShareStatusAccepted
}

// WithEffectiveStatus возвращает копию с учётом ленивого истечения срока.
func (s SharingRequest) WithEffectiveStatus(now time.Time) SharingRequest {
	s.Status = s.EffectiveStatus(now)
	return s
}

// StatusChange describes one compare-and-swap transition.
type StatusChange struct {
	RequestID uuid.UUID
	Expected  ShareStatus
	Next      ShareStatus
	At        time.Time
}

// Apply sets the new status and the timestamp that belongs to it.
func (s *SharingRequest) Apply(change StatusChange) {
	at := change.At
	s.Status = change.Next
	switch change.Next {
	case ShareStatusAccepted:
		s.AcceptedAt = &at
	case ShareStatusRejected:
		s.RejectedAt = &at
	case ShareStatusRevoked:
		s.RevokedAt = &at
	case ShareStatusExpired:
		s.ExpiredAt = &at
	}
}
