package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap/zapcore"

	"github.com/jbartok/big-data-benchmark/aggregate"
	"github.com/jbartok/big-data-benchmark/log"
	"github.com/jbartok/big-data-benchmark/pipeline"
	"github.com/jbartok/big-data-benchmark/sink"
	"github.com/jbartok/big-data-benchmark/source"
)

type options struct {
	outputPath  string
	parallelism int
	verbose     bool
}

// wordcount counts word occurrences across the given text files. Every token
// lands in a single window that fires once the files are exhausted.
func main() {
	opts := options{}
	command := &cobra.Command{
		Use:          "wordcount [files]",
		Short:        "Count word occurrences across text files",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
	}
	flags := command.Flags()
	flags.StringVar(&opts.outputPath, "output-path", "wordcount.csv", "csv file counts are written to")
	flags.IntVar(&opts.parallelism, "parallelism", 1, "number of file readers")
	flags.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := command.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, paths []string) error {
	level := zapcore.InfoLevel
	if opts.verbose {
		level = zapcore.DebugLevel
	}
	log.Setup(log.DefaultOptions().WithLevel(level).WithNamed("wordcount"))
	logger := log.Global()

	scope, scopeCloser := tally.NewRootScope(tally.ScopeOptions{Prefix: "wordcount"}, time.Second)
	defer scopeCloser.Close()

	src := source.NewText(paths, opts.parallelism)
	snk, err := sink.NewCSV[int64](opts.outputPath)
	if err != nil {
		return err
	}

	//all tokens carry timestamp zero, so one tumbling window holds the whole
	//input and fires when every reader runs dry
	p, err := pipeline.New[string, int64, int64](pipeline.Config{
		WindowSize:           time.Minute,
		SlideBy:              time.Minute,
		SourceParallelism:    opts.parallelism,
		AggregateParallelism: opts.parallelism,
	}, src, aggregate.NewCount[string](), snk, scope)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warnw("failed to close pipeline.", "err", err)
		}
	}()
	return p.Run(ctx)
}
