package cmd

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/platewise/platewise/cli/config"
	"github.com/platewise/platewise/secrets"
	"github.com/platewise/platewise/sheets"
	"github.com/platewise/platewise/telegram"
)

// clients bundles the AWS SDK clients the commands share.
type clients struct {
	SQS *sqs.Client
	S3  *s3.Client
	SSM *ssm.Client
}

// newClients loads the default AWS credential chain.
func newClients(ctx context.Context, cfg config.AWSConfig) (*clients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &clients{
		SQS: sqs.NewFromConfig(awsCfg),
		S3:  s3.NewFromConfig(awsCfg),
		SSM: ssm.NewFromConfig(awsCfg),
	}, nil
}

// resolveSecrets rewrites ssm:// references in place. Validation runs
// before this, so references are present but not yet dereferenced.
func resolveSecrets(ctx context.Context, cl *clients, cfg *config.Config) error {
	resolver, err := secrets.NewResolver(cl.SSM)
	if err != nil {
		return err
	}
	return resolver.ResolveAll(ctx,
		&cfg.Telegram.Token,
		&cfg.Gemini.APIKey,
		&cfg.FDC.APIKey,
		&cfg.Sheets.CredentialsJSON,
		&cfg.Report.ChatID,
	)
}

func newTelegram(cfg config.TelegramConfig) (*telegram.Client, error) {
	return telegram.NewClient(telegram.Config{
		Token:   cfg.Token,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout.Duration,
	})
}

func newSheetsStore(ctx context.Context, cfg config.SheetsConfig) (*sheets.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	values, err := sheets.NewValues(ctx, cfg.SpreadsheetID, []byte(cfg.CredentialsJSON))
	if err != nil {
		return nil, err
	}
	return sheets.NewStore(sheets.Config{
		Values:       values,
		MealsSheet:   cfg.MealsSheet,
		ReportsSheet: cfg.ReportsSheet,
		Location:     loc,
	})
}
