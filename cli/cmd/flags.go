// Package cmd implements the platewise CLI commands.
package cmd

import "github.com/urfave/cli/v2"

// CommonFlags are shared by every command that reads configuration.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML config file",
			Value:   "platewise.yaml",
			EnvVars: []string{"PLATEWISE_CONFIG"},
		},
	}
}
