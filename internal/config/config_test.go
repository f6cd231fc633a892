package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: \"9090\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 800, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 50, cfg.Ingest.MinChunkLength)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.Delay)
	assert.Equal(t, 30*time.Minute, cfg.Ingest.LockTTL)
	assert.Equal(t, 0.5, cfg.VectorStore.MatchThreshold)
	assert.Equal(t, 5, cfg.VectorStore.MatchCount)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 0.7, cfg.LLM.Generation.Temperature)
	assert.Equal(t, 40, cfg.LLM.Generation.TopK)
	assert.Equal(t, []string{"admin", "staff"}, cfg.JWT.StaffRoles)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
vector_store:
  type: elasticsearch
  match_threshold: 0.7
llm:
  api_key: from-file
ingest:
  delay: 1s
chat:
  handoff_phrases: ["escalate"]
`)
	t.Setenv("LLM_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "elasticsearch", cfg.VectorStore.Type)
	assert.Equal(t, 0.7, cfg.VectorStore.MatchThreshold)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, time.Second, cfg.Ingest.Delay)
	assert.Equal(t, []string{"escalate"}, cfg.Chat.HandoffPhrases)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateServer_JWTSecret(t *testing.T) {
	cfg, err := Load(writeConfig(t, "jwt:\n  secret: \"\"\n"))
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateServer())

	cfg.JWT.Secret = "short"
	assert.Error(t, cfg.ValidateServer())

	cfg.JWT.Secret = strings.Repeat("k", MinJWTSecretLength)
	assert.NoError(t, cfg.ValidateServer())

	cfg.JWT.StaffRoles = nil
	assert.Error(t, cfg.ValidateServer())
}

func TestValidateServer_SecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("e", MinJWTSecretLength))
	cfg, err := Load(writeConfig(t, "jwt:\n  secret: \"\"\n"))
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateServer())
}
