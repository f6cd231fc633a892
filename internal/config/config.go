// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 取值 postgres 或 mysql。向量检索只在 postgres(pgvector) 下可用。
	Driver      string      `mapstructure:"driver"`
	DSN         string      `mapstructure:"dsn"`
	AutoMigrate bool        `mapstructure:"auto_migrate"`
	Redis       RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储身份提供方签发 token 的校验配置。
type JWTConfig struct {
	Secret     string   `mapstructure:"secret"`
	StaffRoles []string `mapstructure:"staff_roles"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// VectorStoreConfig 选择向量库实现。
type VectorStoreConfig struct {
	// Type 取值 pgvector 或 elasticsearch。
	Type string `mapstructure:"type"`
	// UseRPC 为 true 时通过 match_documents 存储过程检索。
	UseRPC         bool    `mapstructure:"use_rpc"`
	MatchThreshold float64 `mapstructure:"match_threshold"`
	MatchCount     int     `mapstructure:"match_count"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	TopK        int     `mapstructure:"top_k"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ChatConfig 存储聊天助手的人设、转人工关键词与固定话术。
type ChatConfig struct {
	Persona         string   `mapstructure:"persona"`
	Acknowledgement string   `mapstructure:"acknowledgement"`
	HandoffPhrases  []string `mapstructure:"handoff_phrases"`
	HandoffMessage  string   `mapstructure:"handoff_message"`
	FallbackMessage string   `mapstructure:"fallback_message"`
	SupportPhone    string   `mapstructure:"support_phone"`
	SupportEmail    string   `mapstructure:"support_email"`
}

// IngestConfig 存储知识库导入的参数。
type IngestConfig struct {
	Dir               string        `mapstructure:"dir"`
	BucketPrefix      string        `mapstructure:"bucket_prefix"`
	ChunkSize         int           `mapstructure:"chunk_size"`
	ChunkOverlap      int           `mapstructure:"chunk_overlap"`
	MinChunkLength    int           `mapstructure:"min_chunk_length"`
	Delay             time.Duration `mapstructure:"delay"`
	IncrementalWrites bool          `mapstructure:"incremental_writes"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	// SeedOnStart 为 true 时，服务启动发现向量库为空会自动触发一次重建。
	SeedOnStart bool `mapstructure:"seed_on_start"`
}

// MinJWTSecretLength 是 HS256 密钥的最小字节数。
const MinJWTSecretLength = 32

// ValidateServer 检查 HTTP 服务必需的配置。员工接口依赖 jwt.secret 校验身份，
// 密钥为空或过短时任何人都能伪造员工 token。
func (c *Config) ValidateServer() error {
	if len(c.JWT.Secret) < MinJWTSecretLength {
		return fmt.Errorf("jwt.secret 至少需要 %d 字节 (当前 %d), 可通过 JWT_SECRET 环境变量设置", MinJWTSecretLength, len(c.JWT.Secret))
	}
	if len(c.JWT.StaffRoles) == 0 {
		return fmt.Errorf("jwt.staff_roles 不能为空")
	}
	return nil
}

// Load 从指定路径读取 YAML 配置，环境变量（及 .env）中的同名键会覆盖文件中的值。
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("jwt.staff_roles", []string{"admin", "staff"})
	v.SetDefault("kafka.topic", "knowledge-ingest")
	v.SetDefault("kafka.group_id", "offshore-assist-ingest")
	v.SetDefault("elasticsearch.index_name", "document_embeddings")
	v.SetDefault("vector_store.type", "pgvector")
	v.SetDefault("vector_store.match_threshold", 0.5)
	v.SetDefault("vector_store.match_count", 5)
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("llm.generation.temperature", 0.7)
	v.SetDefault("llm.generation.top_p", 0.95)
	v.SetDefault("llm.generation.top_k", 40)
	v.SetDefault("llm.generation.max_tokens", 1024)
	v.SetDefault("ingest.dir", "./knowledge")
	v.SetDefault("ingest.chunk_size", 800)
	v.SetDefault("ingest.chunk_overlap", 200)
	v.SetDefault("ingest.min_chunk_length", 50)
	v.SetDefault("ingest.delay", 500*time.Millisecond)
	v.SetDefault("ingest.lock_ttl", 30*time.Minute)
}
