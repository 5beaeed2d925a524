package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eegility/internal/config"
	"eegility/internal/domain"
	"eegility/internal/logger"
	"eegility/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "eeg:record:"

// RecordCache кэширует строки eeg_records в Redis. Решения о доступе не
// кэшируются: гранты всегда читаются из базы, поэтому отзыв шаринга
// действует сразу.
type RecordCache struct {
	service.RecordStore

	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// cachedRecord сохраняет StorageKey, который скрыт из JSON API.
type cachedRecord struct {
	domain.EegRecord
	StorageKey string `json:"storage_key"`
}

func NewRecordCache(store service.RecordStore, cfg config.RedisConfig, log *zap.Logger) (*RecordCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRecordCache(store, client, cfg.TTL, log), nil
}

func newRecordCache(store service.RecordStore, client *redis.Client, ttl time.Duration, log *zap.Logger) *RecordCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RecordCache{
		RecordStore: store,
		client:      client,
		ttl:         ttl,
		log:         logger.Named(log, "record-cache"),
	}
}

func (c *RecordCache) Close() error {
	return c.client.Close()
}

func recordKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// GetByID читает из Redis, при промахе или недоступности Redis идет в базу.
func (c *RecordCache) GetByID(ctx context.Context, id uuid.UUID) (*domain.EegRecord, error) {
	data, err := c.client.Get(ctx, recordKey(id)).Bytes()
	switch {
	case err == nil:
		record, decodeErr := decodeRecord(data)
		if decodeErr == nil {
			return record, nil
		}
		c.log.Warn("dropping undecodable cache entry", zap.String("record_id", id.String()), zap.Error(decodeErr))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("redis get failed", zap.String("record_id", id.String()), zap.Error(err))
	}

	record, err := c.RecordStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := encodeRecord(record); err == nil {
		if err := c.client.Set(ctx, recordKey(id), data, c.ttl).Err(); err != nil {
			c.log.Debug("redis set failed", zap.String("record_id", id.String()), zap.Error(err))
		}
	}
	return record, nil
}

func (c *RecordCache) UpdateMetadata(ctx context.Context, id uuid.UUID, update domain.RecordUpdate) (*domain.EegRecord, error) {
	defer c.invalidate(ctx, id)
	return c.RecordStore.UpdateMetadata(ctx, id, update)
}

func (c *RecordCache) SetAnalysis(ctx context.Context, id uuid.UUID, analysis *domain.AdhdAnalysis) error {
	defer c.invalidate(ctx, id)
	return c.RecordStore.SetAnalysis(ctx, id, analysis)
}

func (c *RecordCache) Delete(ctx context.Context, id uuid.UUID) error {
	defer c.invalidate(ctx, id)
	return c.RecordStore.Delete(ctx, id)
}

func (c *RecordCache) invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, recordKey(id)).Err(); err != nil {
		c.log.Warn("redis invalidation failed", zap.String("record_id", id.String()), zap.Error(err))
	}
}

func encodeRecord(record *domain.EegRecord) ([]byte, error) {
	return json.Marshal(cachedRecord{EegRecord: *record, StorageKey: record.StorageKey})
}

func decodeRecord(data []byte) (*domain.EegRecord, error) {
	var cached cachedRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	record := cached.EegRecord
	record.StorageKey = cached.StorageKey
	return &record, nil
}

var _ service.RecordStore = (*RecordCache)(nil)
