// bomcheck validates a bill of materials against supplier catalogs.
//
// Usage:
//
//	bomcheck --config bomcheck.yaml validate --bom bom.csv [--consolidate]
//	bomcheck --config bomcheck.yaml lookup --mpn LM358DR --qty 100
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	app := &cli.App{
		Name:    "bomcheck",
		Usage:   "Validate BOM pricing and availability across supplier catalogs",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "bomcheck.yaml",
				Usage:   "Path to the YAML configuration",
				EnvVars: []string{"BOMCHECK_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"BOMCHECK_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address while running",
				EnvVars: []string{"BOMCHECK_METRICS_ADDR"},
			},
		},

		Commands: []*cli.Command{
			validateCommand(),
			lookupCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate every line of a BOM CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bom",
				Aliases:  []string{"b"},
				Usage:    "Path to the BOM CSV",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the JSON report here instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "consolidate",
				Usage: "Compare the BOM against buying everything from one supplier",
			},
			&cli.StringFlag{
				Name:  "target",
				Usage: "Consolidation target supplier (overrides the configuration)",
			},
		},
		Action: runValidate,
	}
}

func lookupCommand() *cli.Command {
	return &cli.Command{
		Name:  "lookup",
		Usage: "Validate a single part",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mpn",
				Usage:    "Manufacturer part number",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "manufacturer",
				Usage: "Manufacturer name",
			},
			&cli.IntFlag{
				Name:  "qty",
				Value: 1,
				Usage: "Requested quantity",
			},
			&cli.StringFlag{
				Name:  "supplier",
				Usage: "Only consider offers from this supplier",
			},
		},
		Action: runLookup,
	}
}
