package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/cloudbak/internal/operations"
)

var backupCmd = &cobra.Command{
	Use:       "backup confluence|jira",
	Short:     "Start a cloud export, wait for it and download the archive",
	Args:      serviceArgs,
	ValidArgs: serviceNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd, args, (*operations.OperationManager).Backup)
	},
}

func init() {
	addSiteFlags(backupCmd.Flags())
	backupCmd.Flags().BoolP("with-attachments", "a", false, "include attachments in the backup")
}
