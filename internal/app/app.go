// Package app 按配置组装服务端与离线导入共用的依赖。
package app

import (
	"context"
	"fmt"

	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/pipeline"
	"offshore-assist-go/internal/repository"
	"offshore-assist-go/internal/service"
	"offshore-assist-go/pkg/database"
	"offshore-assist-go/pkg/embedding"
	"offshore-assist-go/pkg/es"
	"offshore-assist-go/pkg/kafka"
	"offshore-assist-go/pkg/llm"
	"offshore-assist-go/pkg/log"
	"offshore-assist-go/pkg/storage"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App 持有进程级的客户端与服务，生命周期由入口函数管理。
type App struct {
	Config *config.Config

	DB          *gorm.DB
	Redis       *redis.Client
	Producer    *kafka.Producer
	VectorStore repository.VectorStore

	Retrieval     service.RetrievalService
	Chat          service.ChatService
	Conversations service.ConversationService
	Ingest        service.IngestService
}

// Options 控制 Build 初始化哪些可选组件。
type Options struct {
	// WithProducer 为 true 且 kafka.enabled 时创建 Kafka 生产者。
	WithProducer bool
}

// Build 初始化数据库、向量库及各个服务。ctx 取消时进程内的后台导入随之中止。
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if cfg.Database.AutoMigrate {
		if err := repository.MigrateConversations(ctx, db); err != nil {
			return nil, fmt.Errorf("迁移会话表失败: %w", err)
		}
	}

	store, err := newVectorStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	a.VectorStore = store

	var state repository.IngestStateRepository
	if cfg.Database.Redis.Addr != "" {
		rdb, err := database.InitRedis(ctx, cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		a.Redis = rdb
		state = repository.NewIngestStateRepository(rdb)
	}

	sources := map[string]pipeline.Source{
		service.SourceDir: pipeline.DirSource{Dir: cfg.Ingest.Dir},
	}
	if cfg.MinIO.Enabled {
		minioClient, err := storage.InitMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		sources[service.SourceMinIO] = pipeline.MinIOSource{
			Client: minioClient,
			Bucket: cfg.MinIO.BucketName,
			Prefix: cfg.Ingest.BucketPrefix,
		}
	}

	var publisher service.TaskPublisher
	if opts.WithProducer && cfg.Kafka.Enabled {
		a.Producer = kafka.NewProducer(cfg.Kafka)
		publisher = a.Producer
	}

	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	conversationRepo := repository.NewConversationRepository(db)

	a.Retrieval = service.NewRetrievalService(embeddingClient, store, cfg.VectorStore.MatchThreshold)
	a.Chat = service.NewChatService(
		service.NewHandoffDetector(cfg.Chat.HandoffPhrases),
		a.Retrieval,
		service.NewResponseGenerator(llmClient, cfg.Chat, cfg.LLM.Generation),
		conversationRepo,
		cfg.Chat,
		cfg.VectorStore.MatchCount,
	)
	a.Conversations = service.NewConversationService(conversationRepo)

	ingestor := pipeline.NewIngestor(embeddingClient, store, cfg.Ingest)
	a.Ingest = service.NewIngestService(ctx, ingestor, store, state, publisher, sources, cfg.Ingest.LockTTL)
	return a, nil
}

func newVectorStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (repository.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "elasticsearch":
		client, err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("es 初始化失败: %w", err)
		}
		return repository.NewESVectorStore(client, cfg.Elasticsearch.IndexName), nil
	case "", "pgvector":
		if cfg.Database.Driver != "postgres" {
			return nil, fmt.Errorf("pgvector 向量库需要 postgres 驱动, 当前为 %q", cfg.Database.Driver)
		}
		if cfg.Database.AutoMigrate {
			if err := repository.EnsureVectorSchema(ctx, db, cfg.Embedding.Dimensions); err != nil {
				return nil, err
			}
		}
		return repository.NewPgVectorStore(db, cfg.VectorStore.UseRPC), nil
	default:
		return nil, fmt.Errorf("未知的向量库类型: %s", cfg.VectorStore.Type)
	}
}

// Close 释放外部连接。
func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			log.Warnf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warnf("关闭 Redis 连接失败: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
