package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTOML = `
version = "1.0.0"

[server]
name = "docstore"
environment = "dev"

[log]
level = "info"
format = "json"
output = "stdout"

[data.database]
driver = "mysql"
dsn = "root:secret@tcp(127.0.0.1:3306)/docstore"
conn_max_lifetime = "300s"
max_idle_conns = 10
max_open_conns = 100

[data.mongodb]
uri = "mongodb://127.0.0.1:27017"
database = "docstore_read"
artifact_collection = "artifact_documents"
page_collection = "page_documents"

[eventstore]
table_name = "domain_events"
snapshot_interval = 50

[temporal]
host_port = "127.0.0.1:7233"
namespace = "default"
task_queue = "docstore-pipeline"
enabled = true

[consumers.readmodel]
group = "readmodel-projector"
poll_interval = "200ms"
batch_size = 100

[consumers.pipeline]
group = "pipeline-dispatcher"
poll_interval = "200ms"
batch_size = 50
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadParsesTOML(t *testing.T) {
	var conf Config
	require.NoError(t, Load(writeConfigFile(t, validTOML), &conf))

	assert.Equal(t, "1.0.0", conf.Version)
	assert.Equal(t, "docstore", conf.Server.Name)
	assert.Equal(t, "dev", conf.Server.Environment)
	assert.Equal(t, "mysql", conf.Data.Database.Driver)
	assert.Equal(t, int64(50), conf.EventStore.SnapshotInterval)
	assert.Equal(t, "docstore-pipeline", conf.Temporal.TaskQueue)
	assert.Equal(t, 100, conf.Consumers.ReadModel.BatchSize)

	// 时长字段接受 "300s"、"200ms" 这类带单位的字符串。
	assert.Equal(t, 300*time.Second, conf.Data.Database.ConnMaxLifetime)
	assert.Equal(t, 200*time.Millisecond, conf.Consumers.ReadModel.PollInterval)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	broken := `
[server]
name = "docstore"
environment = "staging"

[data.database]
driver = "mysql"
dsn = "root:secret@tcp(127.0.0.1:3306)/docstore"
`

	var conf Config
	err := Load(writeConfigFile(t, broken), &conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	broken := `
[server]
environment = "dev"
`

	var conf Config
	err := Load(writeConfigFile(t, broken), &conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadMissingFile(t *testing.T) {
	var conf Config
	err := Load(filepath.Join(t.TempDir(), "absent.toml"), &conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config error")
}

// 文件里已有的键可被 APP_ 前缀环境变量覆盖。
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("APP_SERVER_ENVIRONMENT", "prod")

	var conf Config
	require.NoError(t, Load(writeConfigFile(t, validTOML), &conf))

	assert.Equal(t, "prod", conf.Server.Environment)
}

func TestMaskHidesSensitiveValues(t *testing.T) {
	configMap := map[string]any{
		"dsn":      "root:secret@tcp(127.0.0.1:3306)/docstore",
		"password": "hunter2",
		"nested": map[string]any{
			"auth_token": "tok-123",
			"endpoint":   "https://logs.example.com",
		},
		"items": []any{
			map[string]any{"api_key": "k-1", "name": "keep"},
		},
		"level": "info",
	}

	mask(configMap)

	assert.Equal(t, "******", configMap["dsn"])
	assert.Equal(t, "******", configMap["password"])
	assert.Equal(t, "******", configMap["nested"].(map[string]any)["auth_token"])
	assert.Equal(t, "https://logs.example.com", configMap["nested"].(map[string]any)["endpoint"])
	assert.Equal(t, "******", configMap["items"].([]any)[0].(map[string]any)["api_key"])
	assert.Equal(t, "keep", configMap["items"].([]any)[0].(map[string]any)["name"])
	assert.Equal(t, "info", configMap["level"])
}

func TestPrintWithMaskDoesNotPanic(t *testing.T) {
	var conf Config
	require.NoError(t, Load(writeConfigFile(t, validTOML), &conf))

	PrintWithMask(&conf)
}

func TestRegisterReloadHookIgnoresNil(t *testing.T) {
	before := len(onReload)
	RegisterReloadHook(nil)
	assert.Len(t, onReload, before)

	RegisterReloadHook(func(*Config) {})
	assert.Len(t, onReload, before+1)
}
