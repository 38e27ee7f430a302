// Package main provides the scribe CLI entry point.
// scribe turns folders of interview recordings into role-labeled transcripts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/interview-scribe/cmd"
	"github.com/otherjamesbrown/interview-scribe/config"
	"github.com/otherjamesbrown/interview-scribe/pkg/buildinfo"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

// Global flags and state.
var (
	cfgFile      string
	outputFormat string
	debug        bool

	// cfg holds the loaded configuration.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Interview transcription with speaker roles",
	Long: `scribe transcribes folders of interview recordings and labels who said what.

Each recording is run through a speech recognizer and a speaker diarizer. The
two results are aligned, the interviewer is identified from what they say, and
the conversation is written out as a transcript (TXT, DOCX, Markdown).

COMMON WORKFLOWS:
  First run:        scribe auth hf-token set  →  scribe config init
  Transcribe:       scribe transcribe ./entrevistas --template plantilla.docx
  Check a folder:   scribe status ./entrevistas

Run 'scribe <command> --help' for flags and examples.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		switch cmd.Name() {
		case "version", "help", "completion", "init", "set":
			return nil
		}

		loaded, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		cfg = loaded

		// Override with command-line flags.
		if outputFormat != "" {
			format := config.OutputFormat(outputFormat)
			if !format.IsValid() {
				return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", outputFormat)
			}
			cfg.OutputFormat = format
		}
		if debug {
			cfg.Debug = true
		}

		logging.SetGlobal(logging.NewLogger(cfg.LoggerConfig()))
		return nil
	},
}

// loadConfig reads --config when given, otherwise the default location.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		path, err := config.ExpandPath(cfgFile)
		if err != nil {
			return nil, err
		}
		return config.LoadConfigFrom(path)
	}
	return config.LoadConfig()
}

// currentConfig hands the root-loaded configuration to subcommands.
func currentConfig() (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	return loadConfig()
}

var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of scribe.

Examples:
  scribe version
  scribe version --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get(buildinfo.ServiceName)
		out := cmd.OutOrStdout()

		if versionOutputJSON || outputFormat == string(config.OutputFormatJSON) {
			return writeJSON(out, info)
		}
		if outputFormat == string(config.OutputFormatYAML) {
			return yaml.NewEncoder(out).Encode(info)
		}

		fmt.Fprintf(out, "scribe version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:   %s\n", info.Commit)
		fmt.Fprintf(out, "  built:    %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:       %s\n", info.GoVersion)
		fmt.Fprintf(out, "  platform: %s\n", info.Platform)
		return nil
	},
}

// configCmd is the parent command for configuration management.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify the scribe configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration: defaults, then the config file, then
SCRIBE_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := currentConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		out := cmd.OutOrStdout()

		switch current.OutputFormat {
		case config.OutputFormatJSON:
			doc, err := configDocument(current)
			if err != nil {
				return err
			}
			return writeJSON(out, doc)
		case config.OutputFormatYAML:
			return yaml.NewEncoder(out).Encode(redacted(current))
		}

		configPath, _ := config.ConfigPath()
		if cfgFile != "" {
			configPath = cfgFile
		}

		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  Config file:      %s\n", configPath)
		fmt.Fprintf(out, "  Output folder:    %s\n", current.OutputDir)
		fmt.Fprintf(out, "  Audio extensions: %s\n", strings.Join(current.AudioExtensions, " "))
		fmt.Fprintf(out, "  Marker:           %s\n", current.Marker)
		fmt.Fprintf(out, "  Language:         %s\n", current.Language)
		fmt.Fprintf(out, "  Model:            %s\n", current.Model)
		fmt.Fprintf(out, "  Formats:          %s\n", strings.Join(current.Export.Formats, ", "))
		fmt.Fprintf(out, "  Template:         %s\n", valueOrDefault(current.Export.TemplatePath, "(none)"))
		fmt.Fprintf(out, "  Role policy:      %s\n", current.Roles.Policy)
		fmt.Fprintf(out, "  Role labels:      %s / %s\n", current.Roles.DistinguishedLabel, current.Roles.OtherLabel)
		fmt.Fprintf(out, "  Whisper command:  %s\n", strings.Join(current.Engines.Whisper.Command, " "))
		fmt.Fprintf(out, "  Pyannote command: %s\n", strings.Join(current.Engines.Pyannote.Command, " "))
		fmt.Fprintf(out, "  Redis events:     %s\n", valueOrDefault(current.Events.RedisAddr, "(disabled)"))
		fmt.Fprintf(out, "  Log level:        %s\n", current.Log.Level)
		fmt.Fprintf(out, "  Debug:            %t\n", current.Debug)
		fmt.Fprintf(out, "  HF token:         %s\n", tokenState(current.HFToken))

		return nil
	},
}

// configInitCmd initializes configuration.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		// Check if config already exists.
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(out, "Use 'scribe config show' to view current settings.")
			return nil
		}

		defaultCfg := config.DefaultConfig()
		if err := config.SaveConfig(defaultCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "\nDefault settings:")
		fmt.Fprintf(out, "  Output folder: %s\n", defaultCfg.OutputDir)
		fmt.Fprintf(out, "  Language:      %s\n", defaultCfg.Language)
		fmt.Fprintf(out, "  Model:         %s\n", defaultCfg.Model)
		fmt.Fprintf(out, "  Formats:       %s\n", strings.Join(defaultCfg.Export.Formats, ", "))

		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  output_dir          - Folder for transcripts
  language            - Spoken language code (e.g. es)
  model               - Speech recognition model (e.g. large-v3)
  marker              - Suffix added to transcript file names
  formats             - Comma-separated transcript formats (txt, docx, md)
  template            - Default DOCX template (supports ~)
  output_format       - Default output format (text, json, yaml)
  roles.policy        - How the interviewer is identified (cues, longest)
  roles.distinguished_label - Label for the interviewer
  roles.other_label   - Label for everyone else
  redis_addr          - Redis address for batch events (empty disables)
  log.level           - Log level (debug, info, warn, error)
  debug               - Enable debug mode (true/false)

Examples:
  scribe config set output_dir ~/transcripciones
  scribe config set formats txt,docx,md
  scribe config set roles.policy longest`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		currentCfg, err := loadConfig()
		if err != nil {
			// If config doesn't exist or is broken, start with defaults.
			currentCfg = config.DefaultConfig()
		}

		if err := setConfigValue(currentCfg, key, value); err != nil {
			return err
		}
		if err := currentCfg.Validate(); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}

		if err := config.SaveConfig(currentCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

// setConfigValue applies one 'config set' key to c.
func setConfigValue(c *config.Config, key, value string) error {
	switch key {
	case "output_dir":
		c.OutputDir = value
	case "language":
		c.Language = value
	case "model":
		c.Model = value
	case "marker":
		c.Marker = value
	case "formats":
		var formats []string
		for _, f := range strings.Split(value, ",") {
			if f = strings.TrimSpace(f); f != "" {
				formats = append(formats, f)
			}
		}
		c.Export.Formats = formats
	case "template":
		if _, err := config.ExpandPath(value); err != nil {
			return fmt.Errorf("invalid template path: %w", err)
		}
		// Store the original value (with ~) for readability.
		c.Export.TemplatePath = value
	case "output_format":
		format := config.OutputFormat(value)
		if !format.IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", value)
		}
		c.OutputFormat = format
	case "roles.policy":
		c.Roles.Policy = value
	case "roles.distinguished_label":
		c.Roles.DistinguishedLabel = value
	case "roles.other_label":
		c.Roles.OtherLabel = value
	case "redis_addr":
		c.Events.RedisAddr = value
	case "log.level":
		c.Log.Level = value
	case "debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid debug value: %s (must be true or false)", value)
		}
		c.Debug = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for scribe.

To load completions:

Bash:
  $ source <(scribe completion bash)

Zsh:
  $ scribe completion zsh > "${fpath[1]}/_scribe"

Fish:
  $ scribe completion fish | source

PowerShell:
  PS> scribe completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

// writeJSON outputs data as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// redacted returns a copy of c that is safe to print.
func redacted(c *config.Config) *config.Config {
	shown := *c
	if shown.Events.RedisPassword != "" {
		shown.Events.RedisPassword = "********"
	}
	return &shown
}

// configDocument converts c to a generic map keyed like the config file.
func configDocument(c *config.Config) (map[string]interface{}, error) {
	data, err := yaml.Marshal(redacted(c))
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return doc, nil
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func tokenState(token string) string {
	if token == "" {
		return "(from keyring, see 'scribe auth hf-token show')"
	}
	return "set via HF_TOKEN"
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.scribe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output-format", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	versionCmd.Flags().BoolVar(&versionOutputJSON, "json", false, "print version as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "work", Title: "Transcription:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	transcribeCmd := cmd.NewTranscribeCommand(transcribeDeps())
	transcribeCmd.GroupID = "work"
	rootCmd.AddCommand(transcribeCmd)

	statusCmd := cmd.NewStatusCommand(&cmd.StatusCommandDeps{LoadConfig: currentConfig})
	statusCmd.GroupID = "work"
	rootCmd.AddCommand(statusCmd)

	authCmd := cmd.NewAuthCommand(nil)
	authCmd.GroupID = "setup"
	rootCmd.AddCommand(authCmd)

	configCmd.GroupID = "setup"
	configCmd.AddCommand(configShowCmd, configInitCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func transcribeDeps() *cmd.TranscribeCommandDeps {
	deps := cmd.DefaultTranscribeDeps()
	deps.LoadConfig = currentConfig
	return deps
}

func main() {
	// Ctrl-C cancels the running batch; the worker reports it as aborted.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
