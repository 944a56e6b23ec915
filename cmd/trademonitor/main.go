package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
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
	brokers              string
	topic                string
	offsetReset          string
	groupId              string
	lag                  time.Duration
	windowSize           time.Duration
	slideBy              time.Duration
	outputPath           string
	checkpointInterval   time.Duration
	checkpointsDir       string
	parallelism          int
	aggregateParallelism int
	restartDelay         time.Duration
	verbose              bool
}

// trademonitor counts trades per ticker over sliding event-time windows fed
// from a Kafka topic and appends fired windows to a CSV file.
func main() {
	opts := options{}
	command := &cobra.Command{
		Use:          "trademonitor",
		Short:        "Windowed per-ticker trade counts from a Kafka topic",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := command.Flags()
	flags.StringVar(&opts.brokers, "brokers", "localhost:9092", "comma separated kafka bootstrap servers")
	flags.StringVar(&opts.topic, "topic", "trades", "kafka topic carrying encoded trades")
	flags.StringVar(&opts.offsetReset, "offset-reset", "latest", "initial offset when no checkpoint exists, earliest or latest")
	flags.StringVar(&opts.groupId, "group-id", "trademonitor", "kafka consumer group id")
	flags.DurationVar(&opts.lag, "lag", 2*time.Second, "allowed event time out-of-orderness")
	flags.DurationVar(&opts.windowSize, "window-size", 10*time.Second, "window length")
	flags.DurationVar(&opts.slideBy, "slide-by", 10*time.Second, "window slide step, equal to window-size for tumbling windows")
	flags.StringVar(&opts.outputPath, "output-path", "trademonitor.csv", "csv file fired windows are appended to")
	flags.DurationVar(&opts.checkpointInterval, "checkpoint-interval", 10*time.Second, "interval between checkpoints, 0 disables them")
	flags.StringVar(&opts.checkpointsDir, "checkpoints-dir", "checkpoints", "directory the checkpoint store writes to")
	flags.IntVar(&opts.parallelism, "parallelism", 1, "number of kafka consumers")
	flags.IntVar(&opts.aggregateParallelism, "aggregate-parallelism", 1, "number of aggregator and combiner tasks")
	flags.DurationVar(&opts.restartDelay, "restart-delay", 2*time.Second, "fixed delay between restarts after a failure")
	flags.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := command.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	level := zapcore.InfoLevel
	if opts.verbose {
		level = zapcore.DebugLevel
	}
	log.Setup(log.DefaultOptions().WithLevel(level).WithNamed("trademonitor"))
	logger := log.Global()

	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = false
	switch opts.offsetReset {
	case "earliest":
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	case "latest":
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		return errors.Errorf("offset-reset should be earliest or latest, got %s", opts.offsetReset)
	}

	scope, scopeCloser := tally.NewRootScope(tally.ScopeOptions{Prefix: "trademonitor"}, time.Second)
	defer scopeCloser.Close()

	src := source.NewKafka[source.Trade](source.KafkaConfig{
		SaramaConfig: saramaConfig,
		Addresses:    strings.Split(opts.brokers, ","),
		Topic:        opts.topic,
		GroupId:      opts.groupId,
		Parallelism:  opts.parallelism,
	}, source.TradeFormat, scope.SubScope("source"), logger)

	snk, err := sink.NewCSV[int64](opts.outputPath)
	if err != nil {
		return err
	}

	p, err := pipeline.New[source.Trade, int64, int64](pipeline.Config{
		WindowSize:           opts.windowSize,
		SlideBy:              opts.slideBy,
		AllowedLag:           opts.lag,
		CheckpointInterval:   opts.checkpointInterval,
		CheckpointsDir:       opts.checkpointsDir,
		SourceParallelism:    opts.parallelism,
		AggregateParallelism: opts.aggregateParallelism,
	}, src, aggregate.NewCount[source.Trade](), snk, scope)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warnw("failed to close pipeline.", "err", err)
		}
	}()

	supervisor := pipeline.NewSupervisor(logger, p.Run, pipeline.FixedDelay(opts.restartDelay), nil)
	return supervisor.Run(ctx)
}
