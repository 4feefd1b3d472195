package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
)

func TestLoadFromFile(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "robojudge-test-")
	if err != nil {
		t.Fatal("Error:", err)
	}
	expectedConfig := Config{
		Server: &Server{
			Host: "localhost",
			Port: 4242,
		},
		Analyzer: Analyzer{
			Linter:        []string{"flake8", "--max-line-length=120"},
			LinterTimeout: Duration(time.Minute),
		},
		Simulator: Simulator{
			SettleTime:   Duration(15 * time.Second),
			PollInterval: Duration(5 * time.Second),
		},
		Storage: &Storage{
			Options: LocalStorageOptions{FilesDir: "data"},
		},
		LogLevel: LogLevel(log.INFO),
	}
	expectedConfigData, err := json.Marshal(expectedConfig)
	if err != nil {
		t.Fatal("Error:", err)
	}
	_, err = file.Write(expectedConfigData)
	_ = file.Close()
	if err != nil {
		t.Fatal("Error:", err)
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "deleted")); err == nil {
		t.Fatal("Expected error for config from deleted file")
	}
	config, err := LoadFromFile(file.Name())
	if err != nil {
		t.Fatal("Error:", err)
	}
	configData, err := json.Marshal(config)
	if err != nil {
		t.Fatal("Error:", err)
	}
	testExpect(t, string(configData), string(expectedConfigData))
	testExpect(t, config.Simulator.SettleTime.OrElse(time.Second), 15*time.Second)
	testExpect(t, config.Simulator.Duration.OrElse(20*time.Second), 20*time.Second)
}

const templateConfig = `
{
	"server": {
		"host": {{ "localhost" | json }},
		"port": {{ 4242 | json }}
	},
	"simulator": {
		"setup": {{ file "SECRET_FILE" | json }},
		"world": {{ env "ROBOJUDGE_TEST_WORLD" | json }}
	},
	"log_level": "debug"
}
`

func TestLoadFromTemplateFile(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "setup-path")
	if err := os.WriteFile(secretFile, []byte("/opt/ros/setup.bash\n"), 0644); err != nil {
		t.Fatal("Error:", err)
	}
	t.Setenv("ROBOJUDGE_TEST_WORLD", "/worlds/task_world.sdf")
	file := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(file, []byte(strings.ReplaceAll(
		templateConfig, "SECRET_FILE", secretFile,
	)), 0644); err != nil {
		t.Fatal("Error:", err)
	}
	cfg, err := LoadFromFile(file)
	if err != nil {
		t.Fatal("Error:", err)
	}
	testExpect(t, cfg.Simulator.Setup, "/opt/ros/setup.bash")
	testExpect(t, cfg.Simulator.World, "/worlds/task_world.sdf")
	testExpect(t, cfg.LogLevel, LogLevel(log.DEBUG))
	testExpect(t, cfg.Server.Address(), "localhost:4242")
}

func TestLoadFromInvalidFile(t *testing.T) {
	for _, data := range []string{
		"invalid data",
		`{"server": {{ invalid }} }`,
		`{"server": { {{ .unknown }} } }`,
		`{"log_level": "verbose"}`,
		`{"simulator": {"settle_time": "fifteen"}}`,
		`{"storage": {"driver": "ftp"}}`,
		`{"storage": {"driver": "s3", "options": {}}}`,
	} {
		file := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(file, []byte(data), 0644); err != nil {
			t.Fatal("Error:", err)
		}
		if _, err := LoadFromFile(file); err == nil {
			t.Fatalf("Expected error for config %q", data)
		}
	}
}

func TestStorageJSON(t *testing.T) {
	storage := Storage{Options: S3StorageOptions{
		Bucket:       "reports",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
	}}
	data, err := json.Marshal(storage)
	if err != nil {
		t.Fatal("Error:", err)
	}
	var parsed Storage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal("Error:", err)
	}
	testExpect(t, parsed.Options.Driver(), S3StorageDriver)
	if _, err := json.Marshal(Storage{}); err == nil {
		t.Fatal("Expected error")
	}
	testExpect(t, DefaultStorage().Options.Driver(), LocalStorageDriver)
}

func TestServerAddress(t *testing.T) {
	s := Server{Host: "localhost", Port: 8080}
	testExpect(t, s.Address(), "localhost:8080")
}

func testExpect[T comparable](tb testing.TB, output, answer T) {
	tb.Helper()
	if output != answer {
		tb.Fatalf(
			"Expected %q, got %q",
			fmt.Sprint(answer), fmt.Sprint(output),
		)
	}
}
