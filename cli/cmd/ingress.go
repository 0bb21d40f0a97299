package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/platewise/platewise/cli/config"
	"github.com/platewise/platewise/ingress"
	"github.com/platewise/platewise/log"
)

// IngressCommand returns the ingress command: the webhook server that
// enqueues meal jobs.
func IngressCommand() *cli.Command {
	return &cli.Command{
		Name:   "ingress",
		Usage:  "Run the webhook server that accepts meal photos",
		Flags:  CommonFlags(),
		Action: ingressAction,
	}
}

func ingressAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := cfg.ValidateIngress(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config:\n%v", err), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	server, err := ingress.NewServer(ingress.Config{
		Queue:         cl.SQS,
		QueueURL:      cfg.Queue.URL,
		Notifier:      tg,
		WebhookSecret: cfg.Ingress.WebhookSecret,
		Addr:          cfg.Ingress.Addr,
		Logger:        log.NewProcessLogger("ingress"),
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if err := server.Run(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
