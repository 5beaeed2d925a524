package cache

import (
	"context"
	"testing"
	"time"

	"eegility/internal/domain"
	"eegility/internal/repository/memstore"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestRecordEncodingKeepsStorageKey(t *testing.T) {
	record := &domain.EegRecord{
		ID:               uuid.New(),
		OwnerUserID:      "alice",
		OriginalFilename: "night.edf",
		Format:           domain.FormatEDF,
		UploadDate:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Tags:             []string{"sleep"},
		StorageKey:       "eeg/alice/night.edf",
		AdhdAnalysis:     &domain.AdhdAnalysis{Requested: true},
	}

	data, err := encodeRecord(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.StorageKey != record.StorageKey || got.ID != record.ID || !got.UploadDate.Equal(record.UploadDate) {
		t.Fatalf("got %+v", got)
	}
	if got.AdhdAnalysis == nil || !got.AdhdAnalysis.Requested {
		t.Fatalf("analysis lost: %+v", got.AdhdAnalysis)
	}
}

// Недоступный Redis не должен ломать чтение и запись записей.
func TestRecordCacheFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	record := &domain.EegRecord{
		ID:          uuid.New(),
		OwnerUserID: "alice",
		Format:      domain.FormatEDF,
		UploadDate:  time.Now().UTC(),
		Tags:        []string{},
		StorageKey:  "eeg/alice/a.edf",
	}
	if err := db.Records().Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := newRecordCache(db.Records(), client, time.Minute, nil)
	defer c.Close()

	got, err := c.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StorageKey != record.StorageKey {
		t.Fatalf("got %+v", got)
	}

	notes := "artifact at 02:14"
	updated, err := c.UpdateMetadata(ctx, record.ID, domain.RecordUpdate{Notes: &notes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Notes != notes {
		t.Fatalf("notes %q", updated.Notes)
	}

	if err := c.Delete(ctx, record.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.GetByID(ctx, record.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
