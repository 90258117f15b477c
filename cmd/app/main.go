package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/eatsync/internal"
	"github.com/starford/eatsync/internal/transfer"
	pkgconfig "github.com/starford/eatsync/pkg/config"
)

func loadOptions(cmd *cli.Command, extra ...internal.Option) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return append([]internal.Option{internal.WithConfig(cfg)}, extra...), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func export(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	sum, err := internal.Export(ctx, opts...)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Archive kept at %s; delete it when no longer needed.\n", sum.ArchivePath)
	return printJSON(sum)
}

func send(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	return internal.Send(ctx, func(addr transfer.Address) {
		fmt.Printf("Serving backup at %s\nEnter this address on the receiving device. Press Ctrl+C to stop.\n", addr)
	}, opts...)
}

func receive(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	sum, err := internal.Receive(ctx, cmd.String("peer"), opts...)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	return printJSON(sum)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP protocol.
	opts, err := loadOptions(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "eatsync",
		Usage:  "Back up and move articles, health records and meal photos between devices on the same network",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the control API and status event stream",
				Action: serve,
			},
			{
				Name:  "export",
				Usage: "Write a backup archive and print its summary",
				Description: "The archive is written to <cache_dir>/sync_backup/backup.zip and stays there\n" +
					"after the command exits. It is replaced by the next export and deleted when\n" +
					"a send session stops. Remove it by hand once it has been copied.",
				Action: export,
			},
			{
				Name:   "send",
				Usage:  "Serve a fresh backup on the LAN until interrupted",
				Action: send,
			},
			{
				Name:  "receive",
				Usage: "Replace all local data with a peer's backup",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "peer",
						Aliases:  []string{"p"},
						Usage:    "Peer address as host or host:port",
						Required: true,
						Sources:  cli.EnvVars("EATSYNC_PEER"),
					},
				},
				Action: receive,
			},
			{
				Name:   "mcp",
				Usage:  "Serve sync tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
