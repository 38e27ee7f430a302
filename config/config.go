// Package config provides configuration management for the scribe command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	"github.com/otherjamesbrown/interview-scribe/pkg/batch"
	"github.com/otherjamesbrown/interview-scribe/pkg/engines"
	"github.com/otherjamesbrown/interview-scribe/pkg/events"
	"github.com/otherjamesbrown/interview-scribe/pkg/export"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultOutputDir       = "output"
	DefaultLanguage        = "es"
	DefaultOutputFormat    = OutputFormatText
	DefaultRolePolicy      = "cues"
	DefaultWhisperTimeout  = 2 * time.Hour
	DefaultPyannoteTimeout = 2 * time.Hour
	DefaultConfigDir       = ".scribe"
	DefaultConfigFile      = "config.yaml"
)

// ExportConfig selects the transcript formats.
type ExportConfig struct {
	// Formats lists the exporters to run per file (txt, docx, md).
	Formats []string `yaml:"formats"`

	// TemplatePath is the default DOCX template, overridable with --template.
	TemplatePath string `yaml:"template,omitempty"`
}

// RolesConfig holds the role classifier settings.
type RolesConfig struct {
	// Policy selects the classifier: "cues" or "longest".
	Policy string `yaml:"policy"`

	// Cues are the self-introduction phrases of the distinguished speaker.
	Cues []string `yaml:"cues"`

	DistinguishedLabel string `yaml:"distinguished_label"`
	OtherLabel         string `yaml:"other_label"`
}

// NormalizationConfig holds the text rewrites applied to recognized text.
type NormalizationConfig struct {
	Rules []attribution.Rewrite `yaml:"rules"`
}

// WhisperConfig holds the speech recognition engine settings.
type WhisperConfig struct {
	Command []string      `yaml:"command"`
	Device  string        `yaml:"device,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// PyannoteConfig holds the diarization engine settings.
type PyannoteConfig struct {
	Command  []string      `yaml:"command"`
	Pipeline string        `yaml:"pipeline"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EnginesConfig groups the external engine settings.
type EnginesConfig struct {
	Whisper  WhisperConfig  `yaml:"whisper"`
	Pyannote PyannoteConfig `yaml:"pyannote"`
}

// EventsConfig configures the optional Redis mirror of batch messages.
type EventsConfig struct {
	// RedisAddr enables publishing when set (host:port).
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// JSON switches from console output to JSON lines.
	JSON bool `yaml:"json,omitempty"`
}

// Config holds the scribe configuration settings.
type Config struct {
	// OutputDir is where transcripts are written. It is also the ledger of
	// already transcribed files.
	OutputDir string `yaml:"output_dir"`

	// AudioExtensions are the input file extensions considered audio.
	AudioExtensions []string `yaml:"audio_extensions"`

	// Marker is appended to the audio base name to name transcripts.
	Marker string `yaml:"marker"`

	// Language is the spoken language passed to the recognizer.
	Language string `yaml:"language"`

	// Model is the recognizer model, overridable per run with --model.
	Model string `yaml:"model"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	Export        ExportConfig        `yaml:"export"`
	Roles         RolesConfig         `yaml:"roles"`
	Normalization NormalizationConfig `yaml:"normalization"`
	Engines       EnginesConfig       `yaml:"engines"`
	Events        EventsConfig        `yaml:"events,omitempty"`
	Log           LogConfig           `yaml:"log"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// HFToken is the Hugging Face token for the diarization pipeline.
	// It is only read from the environment or the keyring, never from the file.
	HFToken string `yaml:"-"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	labels := export.DefaultLabels()
	return &Config{
		OutputDir:       DefaultOutputDir,
		AudioExtensions: append([]string(nil), batch.DefaultAudioExtensions...),
		Marker:          batch.DefaultMarker,
		Language:        DefaultLanguage,
		Model:           engines.DefaultWhisperModel,
		OutputFormat:    DefaultOutputFormat,
		Export: ExportConfig{
			Formats: append([]string(nil), export.DefaultFormats...),
		},
		Roles: RolesConfig{
			Policy:             DefaultRolePolicy,
			Cues:               append([]string(nil), attribution.DefaultCues...),
			DistinguishedLabel: labels.Distinguished,
			OtherLabel:         labels.Other,
		},
		Normalization: NormalizationConfig{
			Rules: append([]attribution.Rewrite(nil), attribution.DefaultRewrites...),
		},
		Engines: EnginesConfig{
			Whisper: WhisperConfig{
				Command: []string{engines.DefaultWhisperCommand},
				Timeout: DefaultWhisperTimeout,
			},
			Pyannote: PyannoteConfig{
				Command:  []string{engines.DefaultPyannoteCommand},
				Pipeline: engines.DefaultPyannotePipeline,
				Timeout:  DefaultPyannoteTimeout,
			},
		},
		Log: LogConfig{Level: string(logging.LevelInfo)},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $SCRIBE_CONFIG_DIR if set, otherwise ~/.scribe
func ConfigDir() (string, error) {
	if dir := os.Getenv("SCRIBE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.scribe/config.yaml or $SCRIBE_CONFIG_DIR/config.yaml)
// 3. Environment variables (SCRIBE_OUTPUT_DIR, SCRIBE_MODEL, SCRIBE_LANGUAGE, ...)
func LoadConfig() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom is LoadConfig with an explicit file path. A missing file
// is not an error.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg. Keys absent from the file keep
// their current values; lists present in the file replace the defaults.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("SCRIBE_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}

	if v := os.Getenv("SCRIBE_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("SCRIBE_LANGUAGE"); v != "" {
		cfg.Language = v
	}

	if v := os.Getenv("SCRIBE_FORMATS"); v != "" {
		cfg.Export.Formats = splitList(v)
	}

	if v := os.Getenv("SCRIBE_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("SCRIBE_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if v := os.Getenv("SCRIBE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("SCRIBE_LOG_JSON"); v == "true" || v == "1" {
		cfg.Log.JSON = true
	}

	// Engine commands are split on whitespace.
	if v := os.Getenv("SCRIBE_WHISPER_COMMAND"); v != "" {
		cfg.Engines.Whisper.Command = strings.Fields(v)
	}

	if v := os.Getenv("SCRIBE_PYANNOTE_COMMAND"); v != "" {
		cfg.Engines.Pyannote.Command = strings.Fields(v)
	}

	if v := os.Getenv("SCRIBE_REDIS_ADDR"); v != "" {
		cfg.Events.RedisAddr = v
	}

	if v := os.Getenv("SCRIBE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Events.RedisDB = db
		}
	}

	if v := os.Getenv("HF_TOKEN"); v != "" {
		cfg.HFToken = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}

	if strings.TrimSpace(c.Marker) == "" {
		return fmt.Errorf("marker is required")
	}

	if len(c.AudioExtensions) == 0 {
		return fmt.Errorf("audio_extensions must not be empty")
	}

	if c.Language == "" {
		return fmt.Errorf("language is required")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if _, err := export.New(c.Export.Formats, c.Labels(), ""); err != nil {
		return fmt.Errorf("export.formats: %w", err)
	}

	if c.Roles.DistinguishedLabel == "" || c.Roles.OtherLabel == "" {
		return fmt.Errorf("roles.distinguished_label and roles.other_label are required")
	}

	if _, err := attribution.PolicyByName(c.Roles.Policy, c.Roles.Cues); err != nil {
		return fmt.Errorf("roles.policy: %w", err)
	}

	if _, err := attribution.NewNormalizer(c.Normalization.Rules); err != nil {
		return fmt.Errorf("normalization.rules: %w", err)
	}

	if len(c.Engines.Whisper.Command) == 0 {
		return fmt.Errorf("engines.whisper.command is required")
	}

	if len(c.Engines.Pyannote.Command) == 0 {
		return fmt.Errorf("engines.pyannote.command is required")
	}

	if c.Engines.Whisper.Timeout < 0 || c.Engines.Pyannote.Timeout < 0 {
		return fmt.Errorf("engine timeouts must not be negative")
	}

	switch logging.Level(c.Log.Level) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// Labels returns the role display labels.
func (c *Config) Labels() export.Labels {
	return export.Labels{Distinguished: c.Roles.DistinguishedLabel, Other: c.Roles.OtherLabel}
}

// Pipeline builds the attribution pipeline from the roles and normalization settings.
func (c *Config) Pipeline() (*attribution.Pipeline, error) {
	normalizer, err := attribution.NewNormalizer(c.Normalization.Rules)
	if err != nil {
		return nil, err
	}
	policy, err := attribution.PolicyByName(c.Roles.Policy, c.Roles.Cues)
	if err != nil {
		return nil, err
	}
	return attribution.NewPipeline(attribution.NewAligner(normalizer), policy), nil
}

// BatchConfig returns the orchestrator settings.
func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		AudioExtensions: c.AudioExtensions,
		OutputDir:       c.OutputDir,
		Marker:          c.Marker,
		Language:        c.Language,
		Formats:         c.Export.Formats,
		Labels:          c.Labels(),
	}
}

// WhisperConfig returns the recognizer adapter settings.
func (c *Config) WhisperConfig() engines.WhisperConfig {
	return engines.WhisperConfig{
		Command: c.Engines.Whisper.Command,
		Model:   c.Model,
		Device:  c.Engines.Whisper.Device,
		Timeout: c.Engines.Whisper.Timeout,
	}
}

// PyannoteConfig returns the diarization adapter settings.
func (c *Config) PyannoteConfig() engines.PyannoteConfig {
	return engines.PyannoteConfig{
		Command:  c.Engines.Pyannote.Command,
		Pipeline: c.Engines.Pyannote.Pipeline,
		Timeout:  c.Engines.Pyannote.Timeout,
		HFToken:  c.HFToken,
	}
}

// PublisherConfig returns the Redis settings, or false when events are disabled.
func (c *Config) PublisherConfig() (events.PublisherConfig, bool) {
	if c.Events.RedisAddr == "" {
		return events.PublisherConfig{}, false
	}
	return events.PublisherConfig{
		Addr:     c.Events.RedisAddr,
		Password: c.Events.RedisPassword,
		DB:       c.Events.RedisDB,
	}, true
}

// LoggerConfig returns the logger settings. Debug forces the debug level.
func (c *Config) LoggerConfig() *logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Log.Level)
	if c.Debug {
		lc.Level = logging.LevelDebug
	}
	lc.JSONFormat = c.Log.JSON
	return lc
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *Config) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	// Ensure config directory exists.
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
