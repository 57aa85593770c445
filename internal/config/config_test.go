package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearSecrets(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TRIPBOT_LLM_API_KEY", "TRIPBOT_AMAP_API_KEY", "TRIPBOT_BAIDU_API_KEY",
		"TRIPBOT_BAIDU_SECRET_KEY", "TRIPBOT_TELEGRAM_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	cfg.LLM.Provider = ""
	cfg.Profiles.Backend = "redis"
	cfg.Agent.MaxConcurrent = 0

	err := Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{"general.logLevel", "llm.provider", "profiles.backend", "agent.maxConcurrent"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_ChannelRules(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.WebSocket.Enabled = true
	cfg.Channels.WebSocket.Port = 70000
	cfg.Channels.Telegram.Enabled = true
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channels.websocket.port")
	assert.Contains(t, err.Error(), "channels.telegram.token")

	cfg.Channels.WebSocket.Port = 8080
	cfg.Channels.Telegram.Token = "123:abc"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_CustomProviderNeedsBase(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Provider = "vllm"
	assert.Error(t, Validate(cfg))
	cfg.LLM.APIBase = "http://localhost:8000/v1"
	assert.NoError(t, Validate(cfg))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TRIPBOT_TEST_HOST", "example.com")
	t.Setenv("TRIPBOT_TEST_EMPTY", "")

	assert.Equal(t, "http://example.com/v1", ExpandEnvVars("http://${TRIPBOT_TEST_HOST}/v1"))
	assert.Equal(t, "fallback", ExpandEnvVars("${TRIPBOT_TEST_EMPTY:-fallback}"))
	assert.Equal(t, "", ExpandEnvVars("${TRIPBOT_TEST_EMPTY:-}"))
	assert.Equal(t, "${TRIPBOT_TEST_UNSET_XYZ}", ExpandEnvVars("${TRIPBOT_TEST_UNSET_XYZ}"))
}

func TestParse_OverDefaults(t *testing.T) {
	clearSecrets(t)
	t.Setenv("TRIPBOT_TEST_MODEL", "deepseek-chat")

	cfg, err := Parse([]byte(`
llm:
  provider: deepseek
  apiBase: https://api.deepseek.com/v1
  model: ${TRIPBOT_TEST_MODEL}
amap:
  apiKey: file-key
`))
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, "file-key", cfg.AMap.APIKey)
	assert.Equal(t, 0.7, cfg.LLM.Temperature, "untouched fields keep defaults")
	assert.Equal(t, "/client-ws", cfg.Channels.WebSocket.Path)
}

func TestParse_EnvSecretsWin(t *testing.T) {
	clearSecrets(t)
	t.Setenv("TRIPBOT_AMAP_API_KEY", "env-key")
	t.Setenv("TRIPBOT_BAIDU_SECRET_KEY", "env-secret")

	cfg, err := Parse([]byte("amap:\n  apiKey: file-key\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.AMap.APIKey)
	assert.Equal(t, "env-secret", cfg.Baidu.SecretKey)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	clearSecrets(t)
	_, err := Parse([]byte("llm:\n  modle: typo\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	clearSecrets(t)
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults().LLM, cfg.LLM)
}

func TestSaveAndLoad(t *testing.T) {
	clearSecrets(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Defaults()
	cfg.LLM.Model = "qwen2.5:7b"
	cfg.LLM.Provider = "ollama"
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", loaded.LLM.Provider)
	assert.Equal(t, "qwen2.5:7b", loaded.LLM.Model)
}

func TestLoadOrDefaults_MissingFile(t *testing.T) {
	clearSecrets(t)
	t.Setenv("TRIPBOT_LLM_API_KEY", "sk-from-env")

	cfg, err := LoadOrDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.APIKey = "sk-1234567890abcdef"
	cfg.Baidu.SecretKey = "short"

	clean := Sanitize(cfg)
	assert.Equal(t, "sk-1****cdef", clean.LLM.APIKey)
	assert.Equal(t, "***", clean.Baidu.SecretKey)
	assert.Equal(t, "", clean.AMap.APIKey)
	assert.Equal(t, "sk-1234567890abcdef", cfg.LLM.APIKey, "original untouched")
}

func TestGetByPathAndListPaths(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "channels.websocket.port")
	require.NoError(t, err)
	assert.Equal(t, 12393, v)

	_, err = GetByPath(cfg, "llm.nope")
	assert.Error(t, err)

	paths := ListPaths(cfg)
	assert.Equal(t, "memory", paths["profiles.backend"])
}
