// Command validate-lessons runs every authored lesson solution through the
// judge and reports steps whose solution does not pass its own tests.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lessonjudge/internal/batch"
	"lessonjudge/internal/common/storage"
	"lessonjudge/internal/judge/client"
	"lessonjudge/internal/judge/service"
	"lessonjudge/internal/lesson/corpus"
	"lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errStepsFailed signals exit status 1 without a fatal error message.
var errStepsFailed = errors.New("lesson validation failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errStepsFailed) {
			printFatal(stdout, err)
		}
		return 1
	}
	return 0
}

func printFatal(w io.Writer, err error) {
	batch.NewConsole(w, !color.NoColor).Fatal(err)
}

type flags struct {
	config   string
	corpus   string
	server   string
	report   string
	parallel int
	timeout  string
	engine   string
	lessons  []string
	color    string
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "validate-lessons",
		Short: "Validate that every lesson solution passes its own tests",
		Long: `Runs the authored solution of every lesson step through the judge and the
static validator, prints a summary and writes a JSON report.

Exits 0 when every step passed and 1 otherwise.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.config, "config", "", "optional YAML config file")
	cmd.Flags().StringVar(&f.corpus, "corpus", "", "directory of lesson YAML files (default: embedded curriculum)")
	cmd.Flags().StringVar(&f.server, "server", "", "judge service base URL (default: judge in-process)")
	cmd.Flags().StringVar(&f.report, "report", batch.DefaultReportPath, "path of the JSON report")
	cmd.Flags().IntVar(&f.parallel, "parallel", defaultParallel, "number of steps validated concurrently")
	cmd.Flags().StringVar(&f.timeout, "timeout", defaultTimeout.String(), "time limit per step")
	cmd.Flags().StringVar(&f.engine, "engine", "interp", "sandbox engine (interp|process)")
	cmd.Flags().StringSliceVar(&f.lessons, "lesson", nil, "only validate these lesson ids")
	cmd.Flags().StringVar(&f.color, "color", "auto", "colour output (auto|always|never)")
	return cmd
}

// resolve merges the config file with explicitly set flags.
func (f *flags) resolve(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(f.config)
	if err != nil {
		return Config{}, err
	}
	set := cmd.Flags().Changed
	if set("corpus") {
		cfg.Corpus = f.corpus
	}
	if set("server") {
		cfg.Server = f.server
	}
	if set("report") || cfg.Report == "" {
		cfg.Report = f.report
	}
	if set("parallel") {
		cfg.Parallel = f.parallel
	}
	if set("timeout") {
		d, err := time.ParseDuration(f.timeout)
		if err != nil {
			return Config{}, appErr.ValidationError("timeout", err.Error())
		}
		cfg.Timeout = d
	}
	if set("engine") {
		cfg.Engine = f.engine
	}
	if set("lesson") {
		cfg.Lessons = f.lessons
	}
	if set("color") {
		cfg.Color = f.color
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg Config, out io.Writer) error {
	if err := logger.Init(cfg.Logger); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	course, err := loadCorpus(cfg)
	if err != nil {
		return err
	}

	judge, err := newJudge(cfg)
	if err != nil {
		return err
	}

	console := batch.NewConsole(out, colored(cfg.Color))
	console.Banner(course)
	rep := batch.NewReporter(judge, batch.Options{Parallel: cfg.Parallel, StepTimeout: cfg.Timeout}).Run(ctx, course)
	console.Lessons(rep)
	console.Summary(rep)

	if err := rep.WriteFile(cfg.Report); err != nil {
		return err
	}
	console.Exported(cfg.Report)

	if cfg.Upload.Enabled {
		if err := upload(ctx, cfg, rep, console); err != nil {
			return err
		}
	}
	if !rep.Passed() {
		return errStepsFailed
	}
	return nil
}

// newJudge returns a remote client when a server is configured and an
// in-process service otherwise.
func newJudge(cfg Config) (batch.Judge, error) {
	if cfg.Server != "" {
		return client.New(cfg.Server, cfg.Timeout)
	}
	pipeline, err := service.NewPipeline(cfg.pipelineConfig(), nil)
	if err != nil {
		return nil, err
	}
	return service.NewService(service.Config{
		Judge:          pipeline.Worker,
		Validator:      pipeline.Validator,
		RunTimeout:     cfg.Timeout,
		QueueWait:      cfg.Timeout * 2,
		MaxConcurrency: cfg.Parallel,
	})
}

func loadCorpus(cfg Config) (model.Course, error) {
	var (
		course model.Course
		err    error
	)
	if cfg.Corpus != "" {
		course, err = corpus.LoadDir(cfg.Corpus)
	} else {
		course, err = corpus.Default()
	}
	if err != nil {
		return model.Course{}, err
	}
	return corpus.Filter(course, cfg.Lessons)
}

func upload(ctx context.Context, cfg Config, rep *batch.Report, console *batch.Console) error {
	store, err := storage.NewMinIOStorage(cfg.Upload.MinIO)
	if err != nil {
		return err
	}
	up, err := batch.NewUploader(store, cfg.Upload.UploadConfig)
	if err != nil {
		return err
	}
	key, err := up.Upload(ctx, rep)
	if err != nil {
		return err
	}
	logger.Info(ctx, "validation report uploaded", zap.String("bucket", cfg.Upload.Bucket), zap.String("key", key))
	console.Uploaded(cfg.Upload.Bucket, key)
	return nil
}

func colored(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return !color.NoColor
	}
}
