package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/cloudbak/internal/operations"
)

var downloadCmd = &cobra.Command{
	Use:   "download confluence|jira",
	Short: "Download the latest recorded backup without starting a new one",
	Long: `download reads the last backup URL saved by a previous run and downloads it.
Useful when a new export cannot be started yet because of the daily limit.`,
	Args:      serviceArgs,
	ValidArgs: serviceNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd, args, (*operations.OperationManager).DownloadLast)
	},
}

func init() {
	addSiteFlags(downloadCmd.Flags())
}
