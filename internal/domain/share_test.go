package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanTransition(t *testing.T) {
	all := []ShareStatus{
		ShareStatusPending, ShareStatusAccepted, ShareStatusRejected,
		ShareStatusRevoked, ShareStatusExpired,
	}
	allowed := map[[2]ShareStatus]bool{
		{ShareStatusPending, ShareStatusAccepted}: true,
		{ShareStatusPending, ShareStatusRejected}: true,
		{ShareStatusPending, ShareStatusRevoked}:  true,
		{ShareStatusPending, ShareStatusExpired}:  true,
		{ShareStatusAccepted, ShareStatusRevoked}: true,
		{ShareStatusAccepted, ShareStatusExpired}: true,
	}

	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			if got != allowed[[2]ShareStatus{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
			if from.Terminal() && got {
				t.Errorf("terminal status %s must not transition to %s", from, to)
			}
		}
	}
}

func TestEffectiveStatus(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status ShareStatus
		expiry *time.Time
		now    time.Time
		want   ShareStatus
	}{
		{"accepted before expiry", ShareStatusAccepted, &expires, expires.Add(-time.Second), ShareStatusAccepted},
		{"accepted at expiry", ShareStatusAccepted, &expires, expires, ShareStatusAccepted},
		{"accepted after expiry", ShareStatusAccepted, &expires, expires.Add(time.Second), ShareStatusExpired},
		{"pending after expiry", ShareStatusPending, &expires, expires.Add(time.Hour), ShareStatusExpired},
		{"accepted without expiry", ShareStatusAccepted, nil, expires.Add(1000 * time.Hour), ShareStatusAccepted},
		{"revoked stays revoked", ShareStatusRevoked, &expires, expires.Add(time.Hour), ShareStatusRevoked},
		{"rejected stays rejected", ShareStatusRejected, &expires, expires.Add(time.Hour), ShareStatusRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &SharingRequest{Status: tt.status, ExpiresAt: tt.expiry}
			if got := req.EffectiveStatus(tt.now); got != tt.want {
				t.Fatalf("EffectiveStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGrantsAccessTo(t *testing.T) {
	now := time.Now()
	recordID := uuid.New()
	req := &SharingRequest{
		EegRecordID:      recordID,
		SharedWithUserID: "bob",
		Status:           ShareStatusAccepted,
	}

	if !req.GrantsAccessTo(recordID, "bob", now) {
		t.Fatal("accepted grant should apply to its recipient")
	}
	if req.GrantsAccessTo(recordID, "carol", now) {
		t.Fatal("grant must not apply to another user")
	}
	if req.GrantsAccessTo(uuid.New(), "bob", now) {
		t.Fatal("grant must not apply to another record")
	}

	var none *SharingRequest
	if none.GrantsAccessTo(recordID, "bob", now) {
		t.Fatal("nil grant must not apply")
	}
}
