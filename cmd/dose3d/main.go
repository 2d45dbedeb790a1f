package main

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"syscall"
	"time"

	"dose3d/internal/models"
	"dose3d/pkg/config"
	"dose3d/pkg/run"
	"dose3d/pkg/scoring"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/encoding/json"
)

// The dose3d version number. Set at build.
var version = "v0.1.0"

// Keeps the cli package from seeing obfuscated option names.
var _ = reflect.TypeOf(options{})

type options struct {
	ConfigFile         string `cli:""        env:"DOSE3D_CONFIG"               help:"YAML configuration file. Defaults are used when it does not exist."`
	OutputDir          string `cli:""        env:"DOSE3D_OUTPUT_DIR"           help:"Directory where exports are written. Overrides output.dir."`
	Deposits           string `cli:""        env:"DOSE3D_DEPOSITS"             help:"CSV file of x,y,z,edep energy deposits to score."`
	Collection         string `cli:""        env:"DOSE3D_COLLECTION"           help:"Run collection the deposits are scored into. Defaults to the first one."`
	Workers            int    `cli:""        env:"DOSE3D_WORKERS"              help:"Number of scoring workers, 0 for one per CPU."`
	MetricsFile        string `cli:""        env:"DOSE3D_METRICS_FILE"         help:"File where the run metrics are written in the Prometheus text format."`
	LogLevel           string `cli:""        env:"DOSE3D_LOG_LEVEL"            help:"Log level (debug|info|warning|error). Overrides output.logLevel."`
	LogIndent          bool   `cli:""        env:"DOSE3D_LOG_INDENT"           help:"Indent logs."`
	WriteDefaultConfig bool   `cli:""        env:"-"                           help:"Write the default configuration to the config file and exit."`
	Version            bool   `cli:""        env:"-"                           help:"Show version."`
	Help               bool   `cli:""        env:"-"                           help:"Show help."`
}

func main() {
	opts := options{
		ConfigFile: "dose3d.yaml",
	}

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Builds a Dose3D detector, scores energy deposits and writes its positioning exports.").
		Options(&opts)
	cli.Load()

	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.Encoder = json.Marshal
	if opts.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}
	errors.Encoder = json.Marshal

	if opts.WriteDefaultConfig {
		if err := config.CreateDefaultConfigFile(opts.ConfigFile); err != nil {
			logs.Fatal(errors.New("writing default config failed").Wrap(err))
		}
		logs.WithTag("path", opts.ConfigFile).Info("default config written")
		return
	}

	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		logs.Fatal(errors.New("loading config failed").
			WithTag("path", opts.ConfigFile).
			Wrap(err))
	}
	if opts.OutputDir != "" {
		cfg.Output.Dir = opts.OutputDir
	}
	if opts.LogLevel != "" {
		cfg.Output.LogLevel = opts.LogLevel
	}
	logs.SetLevel(logs.ParseLevel(cfg.Output.LogLevel))

	start := time.Now()
	rc, err := run.NewContext(cfg)
	if err != nil {
		logs.Fatal(err)
	}

	if opts.Deposits != "" {
		if err := score(ctx, rc, opts); err != nil {
			logs.Fatal(err)
		}
	}

	if err := rc.Export(cfg.Output.Dir); err != nil {
		logs.Fatal(err)
	}

	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, prometheus.DefaultGatherer); err != nil {
			logs.Warn(errors.New("writing metrics failed").
				WithTag("path", opts.MetricsFile).
				Wrap(err))
		}
	}

	logs.WithTag("run_id", rc.ID.String()).
		WithTag("cells", rc.Detector.NumCells()).
		WithTag("duration", time.Since(start).String()).
		Info("run completed")
}

func score(ctx context.Context, rc *run.Context, opts options) error {
	collection := opts.Collection
	if collection == "" {
		collections := rc.Detector.RunCollections()
		if len(collections) == 0 {
			return errors.New("no run collection to score into")
		}
		collection = collections[0].Name
	}

	deposits, err := scoring.ReadDepositsFile(opts.Deposits)
	if err != nil {
		return err
	}

	results, err := rc.Score(ctx, collection, deposits, opts.Workers)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		logs.Warn(errors.New("collection is not registered").WithTag("collection", collection))
	}
	if acc, ok := results[models.Cell]; ok && acc.Misses() > 0 {
		logs.WithTag("collection", collection).
			WithTag("misses", acc.Misses()).
			Info("deposits outside every cell")
	}
	return nil
}
