package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/labstack/gommon/log"
)

// Version contains robojudge version.
var Version = "development"

// Config stores configuration for robojudge server and CLI.
type Config struct {
	// Server contains API server config.
	Server *Server `json:"server,omitempty"`
	// Analyzer contains code checker config.
	Analyzer Analyzer `json:"analyzer"`
	// Simulator contains simulation controller config.
	Simulator Simulator `json:"simulator"`
	// Storage contains report storage config.
	Storage *Storage `json:"storage,omitempty"`
	// LogLevel contains level of logging.
	//
	// You can use following values:
	//	* debug
	//	* info (default)
	//	* warn
	//	* error
	//	* off
	LogLevel LogLevel `json:"log_level,omitempty"`
}

// Server contains server config.
type Server struct {
	// Host contains server host.
	Host string `json:"host"`
	// Port contains server port.
	Port int `json:"port"`
	// BodyLimit contains maximal size of uploaded archive (e.g. "64M").
	BodyLimit string `json:"body_limit,omitempty"`
}

// Address returns string representation of server address.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Analyzer contains code checker config.
type Analyzer struct {
	// CodeDir contains directory for extracted submission.
	CodeDir string `json:"code_dir,omitempty"`
	// UploadDir contains directory for uploaded archives.
	UploadDir string `json:"upload_dir,omitempty"`
	// Linter contains command of python linter.
	//
	// Extraction directory is appended as the last argument.
	Linter []string `json:"linter,omitempty"`
	// LinterTimeout contains timeout for linter invocation.
	LinterTimeout Duration `json:"linter_timeout,omitempty"`
	// OutputLimit contains maximal size of captured tool output.
	OutputLimit int `json:"output_limit,omitempty"`
	// StrictCpp enables failing on C++ parse errors.
	StrictCpp bool `json:"strict_cpp,omitempty"`
}

// Simulator contains simulation controller config.
type Simulator struct {
	// Shell contains shell that executes commands.
	Shell string `json:"shell,omitempty"`
	// Setup contains path to ROS workspace setup script.
	Setup string `json:"setup,omitempty"`
	// Workspace contains working directory for launched processes.
	Workspace string `json:"workspace,omitempty"`
	// World contains path to scene description.
	World string `json:"world,omitempty"`
	// LaunchPackage contains package with environment launch file.
	LaunchPackage string `json:"launch_package,omitempty"`
	// LaunchFile contains environment launch file.
	LaunchFile string `json:"launch_file,omitempty"`
	// EnvironmentCommand contains template of environment command.
	EnvironmentCommand string `json:"environment_command,omitempty"`
	// UserCommand contains template of user executable command.
	UserCommand string `json:"user_command,omitempty"`
	// TelemetryCommand contains template of telemetry query command.
	TelemetryCommand string `json:"telemetry_command,omitempty"`
	// TelemetryTopic contains topic polled for live data.
	TelemetryTopic string `json:"telemetry_topic,omitempty"`
	// TelemetryMarker contains substring that marks live data.
	TelemetryMarker string `json:"telemetry_marker,omitempty"`
	// EnvFile contains path to dotenv file with extra environment.
	EnvFile string `json:"env_file,omitempty"`
	// LogFile contains path to simulation log.
	LogFile string `json:"log_file,omitempty"`
	// DefaultPackage contains package used when nothing is detected.
	DefaultPackage string `json:"default_package,omitempty"`
	// DefaultExecutable contains executable used when nothing is detected.
	DefaultExecutable string `json:"default_executable,omitempty"`
	// SettleTime contains delay before user executable is launched.
	SettleTime Duration `json:"settle_time,omitempty"`
	// Duration contains length of monitored window.
	Duration Duration `json:"duration,omitempty"`
	// PollInterval contains interval between telemetry queries.
	PollInterval Duration `json:"poll_interval,omitempty"`
	// QueryTimeout contains timeout of single telemetry query.
	QueryTimeout Duration `json:"query_timeout,omitempty"`
	// GracePeriod contains delay between SIGTERM and SIGKILL.
	GracePeriod Duration `json:"grace_period,omitempty"`
}

// LogLevel represents level of logging.
type LogLevel log.Lvl

// MarshalText marshals level to text.
func (l LogLevel) MarshalText() ([]byte, error) {
	switch log.Lvl(l) {
	case log.DEBUG:
		return []byte("debug"), nil
	case log.INFO:
		return []byte("info"), nil
	case log.WARN:
		return []byte("warn"), nil
	case log.ERROR:
		return []byte("error"), nil
	case log.OFF:
		return []byte("off"), nil
	default:
		return nil, fmt.Errorf("unknown level: %v", l)
	}
}

// UnmarshalText unmarshals level from text.
func (l *LogLevel) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "debug":
		*l = LogLevel(log.DEBUG)
	case "info", "":
		*l = LogLevel(log.INFO)
	case "warn":
		*l = LogLevel(log.WARN)
	case "error":
		*l = LogLevel(log.ERROR)
	case "off":
		*l = LogLevel(log.OFF)
	default:
		return fmt.Errorf("unknown level: %q", text)
	}
	return nil
}

// Duration represents duration that is stored as "15s" in config.
type Duration time.Duration

// MarshalText marshals duration to text.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText unmarshals duration from text.
func (d *Duration) UnmarshalText(text []byte) error {
	value, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(value)
	return nil
}

// OrElse returns duration or specified value if duration is not set.
func (d Duration) OrElse(value time.Duration) time.Duration {
	if d <= 0 {
		return value
	}
	return time.Duration(d)
}

var configFuncs = template.FuncMap{
	"json": func(value any) (string, error) {
		data, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(data), nil
	},
	"file": func(name string) (string, error) {
		bytes, err := os.ReadFile(name)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(bytes), "\r\n"), nil
	},
	"env": func(name string) string {
		return os.Getenv(name)
	},
}

// LoadFromFile loads configuration from json file.
//
// File is preprocessed as text/template, so secrets can be inserted
// with {{ file "path" | json }} or {{ env "NAME" | json }}.
func LoadFromFile(file string) (Config, error) {
	tmpl, err := template.New(filepath.Base(file)).
		Funcs(configFuncs).
		Option("missingkey=error").
		ParseFiles(file)
	if err != nil {
		return Config{}, err
	}
	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, nil); err != nil {
		return Config{}, err
	}
	cfg := Config{LogLevel: LogLevel(log.INFO)}
	if err := json.Unmarshal(buffer.Bytes(), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
