package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultAddr, cfg.Server.Addr)
	require.Equal(t, DefaultRecentMessages, cfg.Chat.RecentMessages)
	require.Equal(t, DefaultMaxToolRounds, cfg.Chat.MaxToolRounds)
	require.Equal(t, DefaultModelLabel, cfg.Model.Label)
	require.Equal(t, "inmem", cfg.Store.Driver)
	require.Equal(t, "inmem", cfg.TurnLock.Driver)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("T4CHAT_TEST_KEY", "sk-secret")
	path := writeConfig(t, `
model:
  provider: openai
  name: gemini-2.0-flash
  api_key: ${T4CHAT_TEST_KEY}
chat:
  recent_messages: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sk-secret", cfg.Model.APIKey)
	require.Equal(t, 10, cfg.Chat.RecentMessages)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(writeConfig(t, "model:\n  provider: cohere\n"))
	require.ErrorContains(t, err, "unknown model provider")

	_, err = Load(writeConfig(t, "store:\n  driver: mongo\n"))
	require.ErrorContains(t, err, "mongo_uri is required")

	_, err = Load(writeConfig(t, "turnlock:\n  driver: redis\n"))
	require.ErrorContains(t, err, "redis_addr is required")

	_, err = Load(writeConfig(t, "memory:\n  driver: mem0\n"))
	require.ErrorContains(t, err, "mem0_api_key is required")

	_, err = Load(writeConfig(t, "memory:\n  driver: pinecone\n"))
	require.ErrorContains(t, err, "unknown memory driver")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}
