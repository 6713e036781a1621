package main

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/liverrisk/internal/config"
	"github.com/YuminosukeSato/liverrisk/pipeline"
	"github.com/YuminosukeSato/liverrisk/pkg/errors"
	"github.com/YuminosukeSato/liverrisk/pkg/log"
	"github.com/YuminosukeSato/liverrisk/server"
)

// DefaultConfigPath is read when --config is not given. It may be absent.
const DefaultConfigPath = "liverrisk.yaml"

// skipConfigLoad marks commands that run on the built-in defaults without
// reading --config, .env or the environment.
const skipConfigLoad = "liverrisk/skip-config-load"

// app holds the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger log.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "liverrisk",
		Short: "Liver-cancer risk model: data pipeline and inference API",
		Long: `liverrisk extracts the synthetic liver-cancer SQL dump, fits the
preprocessor, tunes a dense network with Hyperband, evaluates it on the
held-out split and serves predictions over HTTP.

Each stage reads the artifact written by the previous one, so the stages
can be run one by one or all together with "liverrisk all".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Annotations[skipConfigLoad] == "true")
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", DefaultConfigPath, "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides the config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "console, json or slog (overrides the config)")

	root.AddCommand(
		a.stageCmd(pipeline.StageExtract, "Parse the SQL dump into the dataset CSV", func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			_, err := p.Extract(cmd.Context())
			return err
		}),
		a.stageCmd(pipeline.StagePreprocess, "Fit and save the column preprocessor", func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			_, err := p.BuildPreprocessor(cmd.Context())
			return err
		}),
		a.stageCmd(pipeline.StageTrain, "Tune, train and save the network", func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			_, err := p.Train(cmd.Context())
			return err
		}),
		a.stageCmd(pipeline.StageEvaluate, "Evaluate the saved model on the test split", func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			_, err := p.Evaluate(cmd.Context())
			return err
		}),
		a.stageCmd("all", "Run extract, preprocess, train and evaluate", func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			return p.Run(cmd.Context())
		}),
		a.serveCmd(),
		a.initConfigCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger. With defaultsOnly
// the existing config file is neither read nor validated.
func (a *app) setup(defaultsOnly bool) error {
	cfg := config.DefaultConfig()
	if !defaultsOnly {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging, a.stderr)
	if err != nil {
		return err
	}
	log.InstallWarnings(logger)
	a.cfg = cfg
	a.logger = logger
	return nil
}

// newLogger picks the backend named by the logging format.
func newLogger(lc config.LoggingConfig, w io.Writer) (log.Logger, error) {
	level, ok := log.ParseLevel(lc.Level)
	if !ok {
		return nil, errors.NewValidationError("logging.level", "unknown level", lc.Level)
	}
	switch strings.ToLower(lc.Format) {
	case "console", "":
		return log.NewZerologLogger(w, level, true), nil
	case "json":
		return log.NewZerologLogger(w, level, false), nil
	case "slog":
		return log.NewSlogLogger(w, level), nil
	default:
		return nil, errors.NewValidationError("logging.format", "unknown format", lc.Format)
	}
}

func (a *app) pipeline() *pipeline.Pipeline {
	return pipeline.New(a.cfg, pipeline.WithLogger(a.logger), pipeline.WithOutput(a.stdout))
}

func (a *app) stageCmd(name, short string, run func(*cobra.Command, *pipeline.Pipeline) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, a.pipeline())
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /predict and /health until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := server.Config{
				Port:            a.cfg.Server.Port,
				AllowedOrigin:   a.cfg.Server.FrontendURL,
				ShutdownTimeout: a.cfg.GetShutdownTimeout(),
				ReadTimeout:     a.cfg.GetReadTimeout(),
			}
			if port > 0 {
				sc.Port = port
			}
			gin.SetMode(gin.ReleaseMode)
			return newServer(a.cfg, sc, a.logger).Run(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides the config and PORT)")
	return cmd
}

// newServer loads the artifacts once. A load failure is logged by the
// server and /predict answers 500 until restart.
func newServer(cfg *config.Config, sc server.Config, logger log.Logger) *server.Server {
	opts := []server.Option{server.WithLogger(logger)}
	ct, net, err := pipeline.LoadArtifacts(cfg)
	if err != nil {
		opts = append(opts, server.WithLoadError(err))
	} else {
		opts = append(opts, server.WithArtifacts(ct, net), server.WithFeatures(ct.FeatureNamesIn()))
	}
	return server.New(sc, opts...)
}

func (a *app) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "init-config [path]",
		Short:       "Write the default configuration as YAML",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			// フラグや環境変数は書き出さない
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			a.logger.Info("configuration written", log.PathKey, path)
			return nil
		},
	}
}
