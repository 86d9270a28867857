package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fortuna/moneta/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	serviceName    = "moneta"
	serviceVersion = "1.0.0"
)

// errRunFailed marks a run in which every attempted game failed
var errRunFailed = errors.New("every attempted game failed")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Capture NBA moneyline charts from Polymarket into a daily workbook",
		Version:       serviceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "moneta.yaml", "path to the YAML config file")

	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(newServeCommand(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.NewLogger(cfg.Log.Level, cfg.Log.Format), nil
}
