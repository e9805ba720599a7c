package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Veraticus/invoice-report/internal/cli"
	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logFile io.Closer
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "invoice",
		Short: "📊 Monthly invoice classification and MMP reclass reports",
		Long: `invoice: reads the monthly PeopleSoft invoice export, classifies each line,
flags duplicate and outlier amounts, totals every category and allocates
the Charts & Coding total across the MMP reclass states.

Reports are written as Excel workbooks, archived locally and optionally
published to Google Sheets.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/invoice/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "also append logs to this file")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	// The only signal handler. Commands see the interrupt as ctx cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if logFile != nil {
		_ = logFile.Close()
	}

	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, cli.FormatError(userErr.UserMessage))
			slog.Debug("Command failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(fmt.Sprintf("%s/.config/invoice", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("INVOICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	closer, err := common.SetupLogger(level, viper.GetString("logging.format"), config.ExpandPath(viper.GetString("logging.file")))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	logFile = closer

	if path := viper.ConfigFileUsed(); path != "" {
		slog.Debug("Loaded config file", "path", path)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			slog.Info("invoice version", "version", version)
		},
	}
}
