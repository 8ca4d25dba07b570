package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kebairia/cloudbak/internal/config"
	"github.com/kebairia/cloudbak/internal/export"
	"github.com/kebairia/cloudbak/internal/logger"
	"github.com/kebairia/cloudbak/internal/operations"
)

// ConfigFile is the path to the YAML configuration.
var (
	ConfigFile string
	// rootCmd is the base command for cloudbak.
	rootCmd = &cobra.Command{
		Use:   "cloudbak",
		Short: "CLI tool for Confluence and Jira cloud backups",
		Long: `cloudbak starts a cloud export of a Confluence or Jira site, waits for it,
downloads the archive and optionally copies it to object storage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		logger.Cleanup()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(downloadCmd)
}

// addSiteFlags registers the flags shared by every service command.
func addSiteFlags(fs *pflag.FlagSet) {
	fs.StringP("site", "s", "", "site name, <site>.atlassian.net")
	fs.StringP("user", "u", "", "Atlassian account email address with admin rights")
	fs.StringP("token", "t", "", "API token of the Atlassian account")
	fs.StringP("folder", "f", "", "destination folder for the backup file")
	fs.String("bucket", "", "bucket to upload the backup file to (name means s3://, or a gs:// / file:// URL)")
	fs.String("state-dir", "", "directory holding run locks and last backup URLs")
	fs.String("base-url", "", "site URL override, e.g. for a self-hosted proxy")
}

// serviceArgs accepts exactly one known service name.
var serviceArgs = cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)

var serviceNames = []string{string(export.Confluence), string(export.Jira)}

type runFunc func(om *operations.OperationManager, ctx context.Context, service export.Service) (*operations.Metadata, error)

// runService loads the configuration, sets up logging and signal handling, and runs fn.
func runService(cmd *cobra.Command, args []string, fn runFunc) error {
	service, err := export.ParseService(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(ConfigFile, cmd.Flags())
	if err != nil {
		return err
	}
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = string(service) + "_backup.log"
	}
	log, err := logger.Init(logger.Options{Level: cfg.Log.Level, File: logFile})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	om, err := operations.NewOperationManager(ctx, cfg, operations.WithLogger(log))
	if err != nil {
		return err
	}
	record, err := fn(om, ctx, service)
	if err != nil {
		return err
	}
	if record.Status == operations.StatusPartial {
		log.Warn("archive kept locally only", "path", record.FilePath)
	}
	return nil
}
