package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/platewise/platewise/archive"
	"github.com/platewise/platewise/cli/config"
	"github.com/platewise/platewise/dedup"
	"github.com/platewise/platewise/fdc"
	"github.com/platewise/platewise/gemini"
	"github.com/platewise/platewise/log"
	"github.com/platewise/platewise/metrics"
	"github.com/platewise/platewise/pipeline"
	"github.com/platewise/platewise/queue"
	"github.com/platewise/platewise/resolve"
)

// WorkerCommand returns the worker command: the long-running queue
// consumer that processes meal jobs.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Run the meal-processing queue consumer",
		Flags:  CommonFlags(),
		Action: workerAction,
	}
}

func workerAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := cfg.ValidateWorker(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config:\n%v", err), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewProcessLogger("worker")

	cl, err := newClients(ctx, cfg.AWS)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := resolveSecrets(ctx, cl, cfg); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	hostname, _ := os.Hostname()
	worker := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	collector := metrics.NewCollector(cfg.Queue.URL, worker)
	logger.Info("worker identity", map[string]any{"worker": worker})

	guard, err := dedup.NewRedisGuard(dedup.Config{
		URL:       cfg.Redis.URL,
		Retention: cfg.Redis.Retention.Duration,
		Grace:     cfg.Redis.Grace.Duration,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	tg, err := newTelegram(cfg.Telegram)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	model, err := gemini.NewClient(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Gemini.Timeout.Duration,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	lookup, err := fdc.NewClient(fdc.Config{
		APIKey:   cfg.FDC.APIKey,
		BaseURL:  cfg.FDC.BaseURL,
		PageSize: cfg.FDC.PageSize,
		Timeout:  cfg.FDC.Timeout.Duration,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	resolver, err := resolve.NewResolver(resolve.Config{
		Lookup:    lookup,
		Picker:    model,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	store, err := newSheetsStore(ctx, cfg.Sheets)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var archiver pipeline.Archiver
	if cfg.Archive.Bucket != "" {
		a, err := archive.NewStore(cl.S3, archive.Config{
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
		})
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		archiver = a
	}

	pipe, err := pipeline.NewPipeline(pipeline.Config{
		Guard:              guard,
		Fetcher:            tg,
		Identifier:         model,
		Resolver:           resolver,
		Sink:               store,
		Notifier:           tg,
		Archiver:           archiver,
		MaxConcurrentItems: cfg.Pipeline.MaxConcurrentItems,
		Collector:          collector,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	consumer, err := queue.NewConsumer(queue.Config{
		Client:        cl.SQS,
		QueueURL:      cfg.Queue.URL,
		DeadLetterURL: cfg.Queue.DeadLetterURL,
		Processor:     pipe,
		WaitTime:      cfg.Queue.WaitTime.Duration,
		MaxMessages:   cfg.Queue.MaxMessages,
		Collector:     collector,
		Logger:        logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if err := consumer.Run(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	snap := collector.Snapshot()
	logger.Info("worker stopped", map[string]any{
		"jobs_started":   snap.JobsStarted,
		"jobs_committed": snap.JobsCommitted,
		"jobs_duplicate": snap.JobsDuplicate,
	})
	return nil
}
