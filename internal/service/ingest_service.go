package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"offshore-assist-go/internal/model"
	"offshore-assist-go/internal/pipeline"
	"offshore-assist-go/internal/repository"
	"offshore-assist-go/pkg/log"
	"offshore-assist-go/pkg/tasks"

	"github.com/google/uuid"
)

const (
	SourceDir   = "dir"
	SourceMinIO = "minio"

	defaultLockTTL = 30 * time.Minute
)

// ErrUnknownSource 表示请求的语料来源未配置。
var ErrUnknownSource = errors.New("unknown or disabled ingest source")

// TaskPublisher 把导入任务投递到异步队列。
type TaskPublisher interface {
	ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error
}

// IngestStatus 是知识库状态接口的返回体。
type IngestStatus struct {
	Running    bool                `json:"running"`
	Stored     int64               `json:"stored"`
	LastReport *model.IngestReport `json:"lastReport,omitempty"`
}

// IngestService 负责触发、串行执行并记录知识库重建。
type IngestService interface {
	// Trigger 校验来源后异步执行一次重建，返回任务 ID。
	Trigger(ctx context.Context, source string, docTypes []string, requestedBy string) (string, error)
	// Run 在当前 goroutine 中持锁执行任务并保存报告。
	Run(ctx context.Context, task tasks.IngestTask) (*model.IngestReport, error)
	// ProcessTask 供 Kafka 消费者调用。
	ProcessTask(ctx context.Context, task tasks.IngestTask) error
	Status(ctx context.Context) (*IngestStatus, error)
	// Wait 等待进程内后台导入结束。
	Wait()
}

type ingestService struct {
	baseCtx   context.Context
	wg        sync.WaitGroup
	ingestor  *pipeline.Ingestor
	store     repository.VectorStore
	state     repository.IngestStateRepository
	publisher TaskPublisher
	sources   map[string]pipeline.Source
	lockTTL   time.Duration
}

// NewIngestService 创建一个新的 IngestService 实例。
// baseCtx 是进程级上下文，进程内后台导入在其取消时中止，与触发请求的生命周期无关。
// state 为 nil 时不加锁也不保存报告（离线 CLI 场景）；publisher 为 nil 时在进程内 goroutine 中执行。
func NewIngestService(
	baseCtx context.Context,
	ingestor *pipeline.Ingestor,
	store repository.VectorStore,
	state repository.IngestStateRepository,
	publisher TaskPublisher,
	sources map[string]pipeline.Source,
	lockTTL time.Duration,
) IngestService {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &ingestService{
		baseCtx:   baseCtx,
		ingestor:  ingestor,
		store:     store,
		state:     state,
		publisher: publisher,
		sources:   sources,
		lockTTL:   lockTTL,
	}
}

func (s *ingestService) Trigger(ctx context.Context, source string, docTypes []string, requestedBy string) (string, error) {
	if source == "" {
		source = SourceDir
	}
	if s.sources[source] == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	if s.state != nil {
		running, err := s.state.IsRunning(ctx)
		if err != nil {
			return "", err
		}
		if running {
			return "", repository.ErrIngestRunning
		}
	}

	task := tasks.IngestTask{
		TaskID:      uuid.NewString(),
		Source:      source,
		DocTypes:    docTypes,
		RequestedBy: requestedBy,
		RequestedAt: time.Now(),
	}

	if s.publisher != nil {
		if err := s.publisher.ProduceIngestTask(ctx, task); err != nil {
			return "", fmt.Errorf("failed to publish ingest task: %w", err)
		}
		log.Infof("[IngestService] 导入任务已发送到 Kafka, TaskID=%s", task.TaskID)
		return task.TaskID, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.ProcessTask(s.baseCtx, task); err != nil {
			log.Errorf("[IngestService] 后台导入任务失败, TaskID=%s: %v", task.TaskID, err)
		}
	}()
	log.Infof("[IngestService] 导入任务已在后台启动, TaskID=%s", task.TaskID)
	return task.TaskID, nil
}

func (s *ingestService) Run(ctx context.Context, task tasks.IngestTask) (*model.IngestReport, error) {
	if task.Source == "" {
		task.Source = SourceDir
	}
	src := s.sources[task.Source]
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, task.Source)
	}

	if s.state != nil {
		token, err := s.state.AcquireLock(ctx, s.lockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := s.state.ReleaseLock(context.WithoutCancel(ctx), token); err != nil {
				log.Warnf("[IngestService] 释放导入锁失败: %v", err)
			}
		}()
	} else {
		log.Warnf("[IngestService] 未配置 Redis, 本次导入不加锁")
	}

	report, runErr := s.ingestor.Run(ctx, src, pipeline.WithTaskID(task.TaskID), pipeline.WithDocTypes(task.DocTypes...))
	if s.state != nil && report != nil {
		if err := s.state.SaveReport(context.WithoutCancel(ctx), report); err != nil {
			log.Warnf("[IngestService] 保存导入报告失败: %v", err)
		}
	}
	return report, runErr
}

func (s *ingestService) ProcessTask(ctx context.Context, task tasks.IngestTask) error {
	_, err := s.Run(ctx, task)
	return err
}

func (s *ingestService) Status(ctx context.Context) (*IngestStatus, error) {
	status := &IngestStatus{}
	if s.state != nil {
		running, err := s.state.IsRunning(ctx)
		if err != nil {
			return nil, err
		}
		status.Running = running
		report, err := s.state.LastReport(ctx)
		if err != nil {
			return nil, err
		}
		status.LastReport = report
	}
	stored, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count stored chunks: %w", err)
	}
	status.Stored = stored
	return status, nil
}

func (s *ingestService) Wait() {
	s.wg.Wait()
}
