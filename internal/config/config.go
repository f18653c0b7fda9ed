package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	SessionName   string              `yaml:"session_name"`
	Environment   string              `yaml:"environment"`
	HTTP          HTTPConfig          `yaml:"http"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Audio         AudioConfig         `yaml:"audio"`
	Bootstrap     BootstrapConfig     `yaml:"bootstrap"`
	Recognizer    RecognizerConfig    `yaml:"recognizer"`
	Corrector     CorrectorConfig     `yaml:"corrector"`
	Display       DisplayConfig       `yaml:"display"`
	Injector      InjectorConfig      `yaml:"injector"`
	Bus           BusConfig           `yaml:"bus"`
	TranscriptLog TranscriptLogConfig `yaml:"transcript_log"`
}

type AudioConfig struct {
	CaptureCommand string `yaml:"capture_command"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	BitDepth       int    `yaml:"bit_depth"`
	ChunkSamples   int    `yaml:"chunk_samples"`
	QueueDepth     int    `yaml:"queue_depth"`
}

type BootstrapConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Command    string `yaml:"command"`
	Path       string `yaml:"path"`
	DurationMS int    `yaml:"duration_ms"`
}

type RecognizerConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	ReadyTimeoutMS int    `yaml:"ready_timeout_ms"`
}

type CorrectorConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Mode             string  `yaml:"mode"` // mock, ollama, exec
	Endpoint         string  `yaml:"endpoint"`
	Command          string  `yaml:"command"`
	Model            string  `yaml:"model"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	Workers          int     `yaml:"workers"`
	QueueDepth       int     `yaml:"queue_depth"`
	ReadyTimeoutMS   int     `yaml:"ready_timeout_ms"`
	RequestTimeoutMS int     `yaml:"request_timeout_ms"`
}

type DisplayConfig struct {
	IncrementalLimit int  `yaml:"incremental_limit"`
	LeadFirstSpace   bool `yaml:"lead_first_space"`
}

type InjectorConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	RetryLimit int    `yaml:"retry_limit"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TranscriptLogConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		SessionName: "voxwrite",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8750,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9092",
		},
		Audio: AudioConfig{
			CaptureCommand: "arecord -q -f S16_LE -r 16000 -c 1 -t raw",
			SampleRate:     16000,
			Channels:       1,
			BitDepth:       16,
			ChunkSamples:   1600,
			QueueDepth:     256,
		},
		Bootstrap: BootstrapConfig{
			Enabled:    true,
			Command:    "arecord -q -f S16_LE -r 16000 -c 1 -t wav",
			Path:       "/tmp/voxwrite-bootstrap.wav",
			DurationMS: 10000,
		},
		Recognizer: RecognizerConfig{
			Mode:           "mock",
			Language:       "en",
			ReadyTimeoutMS: 45000,
		},
		Corrector: CorrectorConfig{
			Enabled:          true,
			Mode:             "mock",
			Endpoint:         "http://localhost:11434",
			Model:            "llama3.2:latest",
			MaxTokens:        256,
			Temperature:      0.2,
			Workers:          2,
			QueueDepth:       64,
			ReadyTimeoutMS:   45000,
			RequestTimeoutMS: 60000,
		},
		Display: DisplayConfig{
			IncrementalLimit: 5,
			LeadFirstSpace:   true,
		},
		Injector: InjectorConfig{
			Mode:       "mock",
			RetryLimit: 1,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		TranscriptLog: TranscriptLogConfig{
			Path:          "./data/voxwrite-transcripts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.SessionName, "VOXWRITE_SESSION_NAME")
	overrideString(&cfg.Environment, "VOXWRITE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXWRITE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXWRITE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXWRITE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXWRITE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXWRITE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXWRITE_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Audio.CaptureCommand, "VOXWRITE_AUDIO_CAPTURE_COMMAND")
	overrideInt(&cfg.Audio.SampleRate, "VOXWRITE_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "VOXWRITE_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.BitDepth, "VOXWRITE_AUDIO_BIT_DEPTH")
	overrideInt(&cfg.Audio.ChunkSamples, "VOXWRITE_AUDIO_CHUNK_SAMPLES")
	overrideInt(&cfg.Audio.QueueDepth, "VOXWRITE_AUDIO_QUEUE_DEPTH")
	overrideBool(&cfg.Bootstrap.Enabled, "VOXWRITE_BOOTSTRAP_ENABLED")
	overrideString(&cfg.Bootstrap.Command, "VOXWRITE_BOOTSTRAP_COMMAND")
	overrideString(&cfg.Bootstrap.Path, "VOXWRITE_BOOTSTRAP_PATH")
	overrideInt(&cfg.Bootstrap.DurationMS, "VOXWRITE_BOOTSTRAP_DURATION_MS")
	overrideString(&cfg.Recognizer.Mode, "VOXWRITE_RECOGNIZER_MODE")
	overrideString(&cfg.Recognizer.Command, "VOXWRITE_RECOGNIZER_COMMAND")
	overrideString(&cfg.Recognizer.ModelPath, "VOXWRITE_RECOGNIZER_MODEL_PATH")
	overrideString(&cfg.Recognizer.Language, "VOXWRITE_RECOGNIZER_LANGUAGE")
	overrideInt(&cfg.Recognizer.ReadyTimeoutMS, "VOXWRITE_RECOGNIZER_READY_TIMEOUT_MS")
	overrideBool(&cfg.Corrector.Enabled, "VOXWRITE_CORRECTOR_ENABLED")
	overrideString(&cfg.Corrector.Mode, "VOXWRITE_CORRECTOR_MODE")
	overrideString(&cfg.Corrector.Endpoint, "VOXWRITE_CORRECTOR_ENDPOINT")
	overrideString(&cfg.Corrector.Command, "VOXWRITE_CORRECTOR_COMMAND")
	overrideString(&cfg.Corrector.Model, "VOXWRITE_CORRECTOR_MODEL")
	overrideInt(&cfg.Corrector.MaxTokens, "VOXWRITE_CORRECTOR_MAX_TOKENS")
	overrideFloat(&cfg.Corrector.Temperature, "VOXWRITE_CORRECTOR_TEMPERATURE")
	overrideInt(&cfg.Corrector.Workers, "VOXWRITE_CORRECTOR_WORKERS")
	overrideInt(&cfg.Corrector.QueueDepth, "VOXWRITE_CORRECTOR_QUEUE_DEPTH")
	overrideInt(&cfg.Corrector.ReadyTimeoutMS, "VOXWRITE_CORRECTOR_READY_TIMEOUT_MS")
	overrideInt(&cfg.Corrector.RequestTimeoutMS, "VOXWRITE_CORRECTOR_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Display.IncrementalLimit, "VOXWRITE_DISPLAY_INCREMENTAL_LIMIT")
	overrideBool(&cfg.Display.LeadFirstSpace, "VOXWRITE_DISPLAY_LEAD_FIRST_SPACE")
	overrideString(&cfg.Injector.Mode, "VOXWRITE_INJECTOR_MODE")
	overrideString(&cfg.Injector.Command, "VOXWRITE_INJECTOR_COMMAND")
	overrideInt(&cfg.Injector.RetryLimit, "VOXWRITE_INJECTOR_RETRY_LIMIT")
	overrideBool(&cfg.Bus.Enabled, "VOXWRITE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXWRITE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXWRITE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXWRITE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXWRITE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXWRITE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXWRITE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXWRITE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXWRITE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.TranscriptLog.Path, "VOXWRITE_TRANSCRIPT_LOG_PATH")
	overrideString(&cfg.TranscriptLog.RetentionMode, "VOXWRITE_TRANSCRIPT_LOG_RETENTION_MODE")
	overrideInt(&cfg.TranscriptLog.RetentionDays, "VOXWRITE_TRANSCRIPT_LOG_RETENTION_DAYS")
	overrideInt(&cfg.TranscriptLog.MaxSessions, "VOXWRITE_TRANSCRIPT_LOG_MAX_SESSIONS")
	overrideBool(&cfg.TranscriptLog.VacuumOnStart, "VOXWRITE_TRANSCRIPT_LOG_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.SessionName == "" {
		return errors.New("session_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.BitDepth != 16 {
		return errors.New("audio.bit_depth must be 16")
	}
	if cfg.Audio.ChunkSamples <= 0 {
		return errors.New("audio.chunk_samples must be positive")
	}
	if cfg.Audio.QueueDepth <= 0 {
		return errors.New("audio.queue_depth must be positive")
	}
	if cfg.Bootstrap.Enabled {
		if cfg.Bootstrap.Path == "" {
			return errors.New("bootstrap.path must not be empty when bootstrap is enabled")
		}
		if cfg.Bootstrap.DurationMS <= 0 {
			return errors.New("bootstrap.duration_ms must be positive")
		}
	}
	switch cfg.Recognizer.Mode {
	case "mock", "exec":
	default:
		return errors.New("recognizer.mode must be one of mock|exec")
	}
	if cfg.Recognizer.Mode == "exec" && cfg.Recognizer.Command == "" {
		return errors.New("recognizer.command must be set when mode=exec")
	}
	if cfg.Recognizer.ReadyTimeoutMS <= 0 {
		return errors.New("recognizer.ready_timeout_ms must be positive")
	}
	if cfg.Corrector.Enabled {
		switch cfg.Corrector.Mode {
		case "mock", "ollama", "exec":
		default:
			return errors.New("corrector.mode must be one of mock|ollama|exec")
		}
		if cfg.Corrector.Mode == "ollama" && cfg.Corrector.Endpoint == "" {
			return errors.New("corrector.endpoint must be set when mode=ollama")
		}
		if cfg.Corrector.Mode == "exec" && cfg.Corrector.Command == "" {
			return errors.New("corrector.command must be set when mode=exec")
		}
		if cfg.Corrector.Workers <= 0 {
			return errors.New("corrector.workers must be >= 1")
		}
		if cfg.Corrector.QueueDepth <= 0 {
			return errors.New("corrector.queue_depth must be >= 1")
		}
	}
	if cfg.Display.IncrementalLimit < 0 {
		return errors.New("display.incremental_limit must be >= 0")
	}
	switch cfg.Injector.Mode {
	case "mock", "exec":
	default:
		return errors.New("injector.mode must be one of mock|exec")
	}
	if cfg.Injector.Mode == "exec" && cfg.Injector.Command == "" {
		return errors.New("injector.command must be set when mode=exec")
	}
	if cfg.Injector.RetryLimit < 0 {
		return errors.New("injector.retry_limit must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.TranscriptLog.Path == "" {
		return errors.New("transcript_log.path must not be empty")
	}
	switch cfg.TranscriptLog.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("transcript_log.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.TranscriptLog.RetentionDays < 0 {
		return errors.New("transcript_log.retention_days must be >= 0")
	}
	return nil
}
