package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/interview-scribe/config"
	"github.com/otherjamesbrown/interview-scribe/credentials"
	"github.com/otherjamesbrown/interview-scribe/pkg/batch"
	"github.com/otherjamesbrown/interview-scribe/pkg/buildinfo"
	"github.com/otherjamesbrown/interview-scribe/pkg/engines"
	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
	"github.com/otherjamesbrown/interview-scribe/pkg/events"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
	"github.com/otherjamesbrown/interview-scribe/pkg/observability"
)

// BusyNotice is shown when another transcription holds the output folder.
const BusyNotice = "A transcription is already running for this output folder. Wait for it to finish and try again."

// Publisher mirrors batch messages and can be shut down.
type Publisher interface {
	batch.EventPublisher
	Close() error
}

// TranscribeCommandDeps holds the dependencies for the transcribe command.
type TranscribeCommandDeps struct {
	Config       *config.Config
	LoadConfig   func() (*config.Config, error)
	NewLogger    func(cfg *config.Config) logging.Logger
	ResolveToken func() (token, source string, err error)
	NewEngines   func(cfg *config.Config, log logging.Logger) (engines.Transcriber, engines.Diarizer)
	NewPublisher func(ctx context.Context, cfg events.PublisherConfig, log logging.Logger) (Publisher, error)
	IsTerminal   func() bool
}

// DefaultTranscribeDeps returns the default dependencies for production use.
func DefaultTranscribeDeps() *TranscribeCommandDeps {
	return &TranscribeCommandDeps{
		LoadConfig: config.LoadConfig,
		NewLogger: func(cfg *config.Config) logging.Logger {
			return logging.NewLogger(cfg.LoggerConfig())
		},
		ResolveToken: func() (string, string, error) {
			return credentials.Resolve(credentials.DefaultSources()...)
		},
		NewEngines: func(cfg *config.Config, log logging.Logger) (engines.Transcriber, engines.Diarizer) {
			return engines.NewWhisperCLI(cfg.WhisperConfig(), log), engines.NewPyannoteCLI(cfg.PyannoteConfig(), log)
		},
		NewPublisher: func(ctx context.Context, cfg events.PublisherConfig, log logging.Logger) (Publisher, error) {
			p, err := events.NewPublisherFromConfig(ctx, cfg, log)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		IsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdout.Fd()))
		},
	}
}

func (d *TranscribeCommandDeps) config() (*config.Config, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

type transcribeOptions struct {
	template    string
	model       string
	outputDir   string
	language    string
	formats     []string
	metricsAddr string
	noProgress  bool
}

// NewTranscribeCommand creates the transcribe command.
func NewTranscribeCommand(deps *TranscribeCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultTranscribeDeps()
	}

	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <audio-folder>",
		Short: "Transcribe every new interview recording in a folder",
		Long: `Transcribe and diarize every audio file in a folder and write one
role-labeled transcript per file.

Files that already have a transcript in the output folder are skipped, so an
interrupted batch can simply be run again. The first failing file stops the
batch; transcripts written before it are kept.

Only one batch can run per output folder at a time.

Examples:
  scribe transcribe ./entrevistas
  scribe transcribe ./entrevistas --template plantilla.docx
  scribe transcribe ./entrevistas --model medium --formats txt
  scribe transcribe ./entrevistas --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd.Context(), cmd, deps, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.template, "template", "", "DOCX template with a {{TRANSCRIPCION}} placeholder")
	cmd.Flags().StringVar(&opts.model, "model", "", "speech recognition model for this run")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "folder for the transcripts (default from config)")
	cmd.Flags().StringVar(&opts.language, "language", "", "spoken language code (default from config)")
	cmd.Flags().StringSliceVar(&opts.formats, "formats", nil, "transcript formats: txt, docx, md")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /version on this address while running")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "print plain lines instead of a progress bar")

	return cmd
}

func runTranscribe(ctx context.Context, cmd *cobra.Command, deps *TranscribeCommandDeps, inputDir string, opts transcribeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := deps.config()
	if err != nil {
		return err
	}
	if err := applyTranscribeFlags(cfg, opts); err != nil {
		return err
	}
	template := opts.template
	if template == "" {
		template = cfg.Export.TemplatePath
	}

	log := deps.NewLogger(cfg)
	if cfg.HFToken == "" {
		token, source, err := deps.ResolveToken()
		if err != nil {
			log.Warn("No Hugging Face token found, diarization may fail", logging.Err(err))
		} else {
			cfg.HFToken = token
			log.Debug("Using Hugging Face token", logging.F("source", source))
		}
	}

	pipeline, err := cfg.Pipeline()
	if err != nil {
		return fmt.Errorf("building attribution pipeline: %w", err)
	}
	transcriber, diarizer := deps.NewEngines(cfg, log)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	if opts.metricsAddr != "" {
		stop, err := serveMetrics(opts.metricsAddr, registry, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	var publisher batch.EventPublisher
	if pc, ok := cfg.PublisherConfig(); ok {
		p, err := deps.NewPublisher(ctx, pc, log)
		if err != nil {
			log.Warn("Event publishing disabled", logging.Err(err))
		} else {
			defer p.Close()
			publisher = p
		}
	}

	orch := batch.NewOrchestrator(cfg.BatchConfig(), batch.Dependencies{
		Transcriber: transcriber,
		Diarizer:    diarizer,
		Pipeline:    pipeline,
		Logger:      batchLogger(cfg, log),
		Metrics:     metrics,
		Tracer:      observability.NewTracer(),
		Publisher:   publisher,
	})
	worker := batch.NewWorker(orch)
	mb := batch.NewMailbox()

	req := batch.Request{InputDir: inputDir, TemplatePath: template, Model: opts.model}
	if err := worker.Start(ctx, req, mb); err != nil {
		if errors.Is(err, scerrors.ErrBusy) {
			fmt.Fprintln(errOut, BusyNotice)
		}
		return err
	}

	// Structured output owns stdout, so progress goes to stderr.
	renderer := newRenderer(errOut, errOut, false)
	if cfg.OutputFormat == config.OutputFormatText {
		renderer = newRenderer(out, errOut, !opts.noProgress && deps.IsTerminal())
	}
	if err := drainMailbox(context.Background(), mb, renderer); err != nil {
		return err
	}

	result, runErr := worker.Wait(context.Background())
	if result != nil {
		if _, err := writeStructured(out, cfg.OutputFormat, summarize(result)); err != nil {
			return err
		}
	}
	return runErr
}

// applyTranscribeFlags overlays per-run flags onto cfg and re-validates it.
func applyTranscribeFlags(cfg *config.Config, opts transcribeOptions) error {
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.language != "" {
		cfg.Language = opts.language
	}
	if len(opts.formats) > 0 {
		cfg.Export.Formats = opts.formats
	}
	if opts.template == "" && cfg.Export.TemplatePath != "" {
		path, err := config.ExpandPath(cfg.Export.TemplatePath)
		if err != nil {
			return err
		}
		cfg.Export.TemplatePath = path
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// batchLogger keeps diagnostics off the terminal unless asked for: the
// observer messages already carry the human-readable stream.
func batchLogger(cfg *config.Config, log logging.Logger) logging.Logger {
	if cfg.Debug || cfg.Log.JSON {
		return log
	}
	lc := cfg.LoggerConfig()
	lc.Output = io.Discard
	return logging.NewLogger(lc)
}

// serveMetrics starts an HTTP listener for Prometheus and build info.
// The returned func shuts it down.
func serveMetrics(addr string, g prometheus.Gatherer, log logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(g))
	mux.HandleFunc("/version", buildinfo.Handler(buildinfo.ServiceName))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", logging.Err(err))
		}
	}()
	log.Info("Serving metrics", logging.F("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// RunSummary is the machine-readable result of a transcribe run.
type RunSummary struct {
	RunID       string   `json:"run_id" yaml:"run_id"`
	Outcome     string   `json:"outcome" yaml:"outcome"`
	Candidates  int      `json:"candidates" yaml:"candidates"`
	Skipped     []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Transcribed []string `json:"transcribed,omitempty" yaml:"transcribed,omitempty"`
	Outputs     []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	DurationSec float64  `json:"duration_seconds" yaml:"duration_seconds"`
	ErrorCode   string   `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func summarize(r *batch.Result) RunSummary {
	s := RunSummary{
		RunID:       r.RunID,
		Outcome:     string(r.Outcome),
		Candidates:  r.Candidates,
		Skipped:     r.Skipped,
		Transcribed: r.Transcribed,
		Outputs:     r.Outputs,
		DurationSec: r.CompletedAt.Sub(r.StartedAt).Seconds(),
	}
	if r.Err != nil {
		s.ErrorCode = string(r.Err.Code)
		s.Error = r.Err.Message
	}
	return s
}
