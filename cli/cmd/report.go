package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/platewise/platewise/cli/config"
	"github.com/platewise/platewise/log"
	"github.com/platewise/platewise/report"
)

// ReportCommand returns the report command: a one-shot run that
// summarizes today's meals. Intended for a daily cron/scheduler slot.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:   "report",
		Usage:  "Generate and deliver today's nutrition summary",
		Flags:  CommonFlags(),
		Action: reportAction,
	}
}

func reportAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := cfg.ValidateReport(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config:\n%v", err), 1)
	}

	ctx := c.Context

	cl, err := newClients(ctx, cfg.AWS)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := resolveSecrets(ctx, cl, cfg); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	tg, err := newTelegram(cfg.Telegram)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	store, err := newSheetsStore(ctx, cfg.Sheets)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	loc, err := cfg.Sheets.Location()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	reporter, err := report.NewReporter(report.Config{
		Store:    store,
		Notifier: tg,
		ChatID:   cfg.Report.ChatID,
		Location: loc,
		Logger:   log.NewProcessLogger("report"),
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if err := reporter.Run(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
