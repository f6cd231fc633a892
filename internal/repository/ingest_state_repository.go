package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"offshore-assist-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	ingestLockKey   = "ingest:lock"
	ingestReportKey = "ingest:last_report"
)

// ErrIngestRunning 表示已有导入任务持有锁。
var ErrIngestRunning = errors.New("an ingestion run is already in progress")

// 只有持锁者才能释放
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// IngestStateRepository 保存导入互斥锁与最近一次导入报告。
type IngestStateRepository interface {
	// AcquireLock 获取导入锁，返回用于释放的 token；锁已被占用时返回 ErrIngestRunning。
	AcquireLock(ctx context.Context, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, token string) error
	// IsRunning 报告导入锁当前是否被持有。
	IsRunning(ctx context.Context) (bool, error)
	SaveReport(ctx context.Context, report *model.IngestReport) error
	// LastReport 返回最近一次报告，没有时返回 nil, nil。
	LastReport(ctx context.Context) (*model.IngestReport, error)
}

type redisIngestStateRepository struct {
	redisClient *redis.Client
}

// NewIngestStateRepository 创建一个新的 IngestStateRepository 实例。
func NewIngestStateRepository(redisClient *redis.Client) IngestStateRepository {
	return &redisIngestStateRepository{redisClient: redisClient}
}

func (r *redisIngestStateRepository) AcquireLock(ctx context.Context, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := r.redisClient.SetNX(ctx, ingestLockKey, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !ok {
		return "", ErrIngestRunning
	}
	return token, nil
}

func (r *redisIngestStateRepository) ReleaseLock(ctx context.Context, token string) error {
	if err := releaseLockScript.Run(ctx, r.redisClient, []string{ingestLockKey}, token).Err(); err != nil {
		return fmt.Errorf("failed to release ingest lock: %w", err)
	}
	return nil
}

func (r *redisIngestStateRepository) IsRunning(ctx context.Context) (bool, error) {
	n, err := r.redisClient.Exists(ctx, ingestLockKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check ingest lock: %w", err)
	}
	return n > 0, nil
}

func (r *redisIngestStateRepository) SaveReport(ctx context.Context, report *model.IngestReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal ingest report: %w", err)
	}
	return r.redisClient.Set(ctx, ingestReportKey, data, 0).Err()
}

func (r *redisIngestStateRepository) LastReport(ctx context.Context) (*model.IngestReport, error) {
	data, err := r.redisClient.Get(ctx, ingestReportKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingest report: %w", err)
	}
	var report model.IngestReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingest report: %w", err)
	}
	return &report, nil
}
