package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration. It is loaded once at startup and
// treated as immutable afterwards.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Model      ModelConfig      `mapstructure:"model" json:"model"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" json:"pipeline"`
	Validation ValidationConfig `mapstructure:"validation" json:"validation"`
	Tasks      TasksConfig      `mapstructure:"tasks" json:"tasks"`
	History    HistoryConfig    `mapstructure:"history" json:"history"`
	Silence    SilenceConfig    `mapstructure:"silence" json:"silence"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" json:"host"`
	Port            int           `mapstructure:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

type ModelConfig struct {
	// Name is a known model name (tiny, base, small, ...) or a path to a
	// ggml model file.
	Name string `mapstructure:"name" json:"name"`
	// Dir is where named models are stored and downloaded to.
	Dir          string  `mapstructure:"dir" json:"dir"`
	Language     string  `mapstructure:"language" json:"language"`
	Temperature  float64 `mapstructure:"temperature" json:"temperature"`
	Timestamps   bool    `mapstructure:"timestamps" json:"timestamps"`
	AutoDownload bool    `mapstructure:"auto_download" json:"auto_download"`
}

type PipelineConfig struct {
	SampleRate      int           `mapstructure:"sample_rate" json:"sample_rate"`
	NormLevel       string        `mapstructure:"norm_level" json:"norm_level"`
	CompandParams   string        `mapstructure:"compand_params" json:"compand_params"`
	TempoFactor     float64       `mapstructure:"tempo_factor" json:"tempo_factor"`
	PadLeadSeconds  float64       `mapstructure:"pad_lead_seconds" json:"pad_lead_seconds"`
	PadTrailSeconds float64       `mapstructure:"pad_trail_seconds" json:"pad_trail_seconds"`
	StageTimeout    time.Duration `mapstructure:"stage_timeout" json:"stage_timeout"`
}

type ValidationConfig struct {
	MaxFileSizeMB     int      `mapstructure:"max_file_size_mb" json:"max_file_size_mb"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" json:"allowed_extensions"`
	AllowedMIMETypes  []string `mapstructure:"allowed_mime_types" json:"allowed_mime_types"`
	// AllowedDirectories are the only roots /local/transcriptions may read from.
	AllowedDirectories []string `mapstructure:"allowed_directories" json:"allowed_directories"`
}

type TasksConfig struct {
	MaxAge        time.Duration `mapstructure:"max_age" json:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" json:"sweep_interval"`
}

type HistoryConfig struct {
	Dir string `mapstructure:"dir" json:"dir"`
}

type SilenceConfig struct {
	Gate          bool    `mapstructure:"gate" json:"gate"`
	ThresholdDBFS float64 `mapstructure:"threshold_dbfs" json:"threshold_dbfs"`
}

const envPrefix = "SCRIBED"

// Load reads configuration from the given YAML file (or the default search
// locations when path is empty), applies SCRIBED_* environment overrides,
// and fills defaults. A missing config file is not an error; defaults and
// environment are enough to run.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env file is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scribed")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Minute)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("model.name", "small")
	v.SetDefault("model.dir", defaultModelDir())
	v.SetDefault("model.language", "auto")
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("model.timestamps", false)
	v.SetDefault("model.auto_download", true)

	v.SetDefault("pipeline.sample_rate", 16000)
	v.SetDefault("pipeline.norm_level", "-0.5")
	v.SetDefault("pipeline.compand_params", "0.3,1 -90,-90,-70,-70,-60,-20,0,0 -5 0 0.2")
	v.SetDefault("pipeline.tempo_factor", 1.25)
	v.SetDefault("pipeline.pad_lead_seconds", 2.0)
	v.SetDefault("pipeline.pad_trail_seconds", 1.0)
	v.SetDefault("pipeline.stage_timeout", 2*time.Minute)

	v.SetDefault("validation.max_file_size_mb", 100)
	v.SetDefault("validation.allowed_extensions", []string{".wav", ".mp3", ".ogg", ".flac", ".m4a"})
	v.SetDefault("validation.allowed_mime_types", []string{
		"audio/wav", "audio/x-wav", "audio/mpeg", "audio/ogg", "audio/flac", "audio/mp4",
	})
	v.SetDefault("validation.allowed_directories", []string{})

	v.SetDefault("tasks.max_age", time.Hour)
	v.SetDefault("tasks.sweep_interval", 5*time.Minute)

	v.SetDefault("history.dir", "")

	v.SetDefault("silence.gate", true)
	v.SetDefault("silence.threshold_dbfs", -65.0)
}

func defaultModelDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/scribed/models"
	}
	return "./models"
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Pipeline.SampleRate <= 0 {
		return fmt.Errorf("invalid pipeline sample rate %d", c.Pipeline.SampleRate)
	}
	if c.Pipeline.TempoFactor <= 0 {
		return fmt.Errorf("invalid tempo factor %g", c.Pipeline.TempoFactor)
	}
	if c.Validation.MaxFileSizeMB <= 0 {
		return fmt.Errorf("invalid max file size %dMB", c.Validation.MaxFileSizeMB)
	}
	return nil
}
