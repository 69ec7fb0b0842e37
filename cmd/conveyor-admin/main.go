// Conveyor Admin — инструмент командной строки для ручных
// вмешательств в конвейер.
//
// Использование:
//
//	conveyor-admin [--config PATH] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	request   Управление requests
//	contents  Просмотр зарегистрированных contents
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/repo"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor-admin",
		Short:         "Conveyor admin tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: CONVEYOR_CONFIG or /etc/conveyor/conveyor.cfg)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	storesFn := func(ctx context.Context) (*cli.Stores, error) {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}

		pool, err := repo.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}

		return &cli.Stores{
			Requests: repo.NewRequestRepo(pool),
			Contents: repo.NewContentRepo(pool),
		}, nil
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRequestCmd(storesFn, outputFn),
		cli.NewContentsCmd(storesFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
