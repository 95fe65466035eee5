package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	textFlag := &cli.StringFlag{
		Name:    "text",
		Aliases: []string{"t"},
		Usage:   "Text to process instead of a file argument or stdin",
	}
	return &cli.App{
		Name:  "docintel",
		Usage: "Run document intelligence stages from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "Extract text from a PDF or image file",
				ArgsUsage: "FILE",
				Action:    extractCommand,
			},
			{
				Name:      "redact",
				Usage:     "Replace sensitive entities in text with placeholders",
				ArgsUsage: "[FILE]",
				Action:    redactCommand,
				Flags:     []cli.Flag{textFlag},
			},
			{
				Name:      "tag",
				Usage:     "Suggest tags for text with the configured classifier",
				ArgsUsage: "[FILE]",
				Action:    tagCommand,
				Flags: []cli.Flag{
					textFlag,
					&cli.BoolFlag{
						Name:  "sections",
						Usage: "Classify word sections and average the scores",
					},
				},
			},
			{
				Name:      "chunks",
				Usage:     "Split text into overlapping word windows",
				ArgsUsage: "[FILE]",
				Action:    chunksCommand,
				Flags: []cli.Flag{
					textFlag,
					&cli.IntFlag{
						Name:  "size",
						Usage: "Words per chunk",
						Value: 512,
					},
					&cli.IntFlag{
						Name:  "overlap",
						Usage: "Words shared by consecutive chunks",
						Value: 50,
					},
				},
			},
			{
				Name:   "labels",
				Usage:  "Print the configured candidate labels",
				Action: labelsCommand,
			},
			{
				Name:   "reap",
				Usage:  "Fail documents stuck in processing",
				Action: reapCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Age after which a processing document is failed",
						Value: time.Hour,
					},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Delete raw files older than the retention period",
				Action: cleanupCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:     "retention",
						Usage:    "Keep files newer than this",
						Required: true,
					},
				},
			},
		},
	}
}

const loggerKey = "logger"

func setupLogger(c *cli.Context) error {
	log, err := logger.NewLogger(
		logger.WithLevel(c.String("log-level")),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[loggerKey] = log.Named("docintel")
	return nil
}

func getLogger(c *cli.Context) logger.Logger {
	if log, ok := c.App.Metadata[loggerKey].(logger.Logger); ok {
		return log
	}
	return logger.NewNop()
}
