package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	httpcmd "github.com/Alijeyrad/clinicq_backend/cmd/http"
	queuecmd "github.com/Alijeyrad/clinicq_backend/cmd/queue"
	systemcmd "github.com/Alijeyrad/clinicq_backend/cmd/system"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "clinicq",
	Short: "Clinicq appointment queue engine for polyclinics.",
	Long: `Clinicq issues numbered queue tickets for clinic services and doctor sessions.
It enforces per-session quotas, estimates call times and pushes back overdue queues.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global config flag, available for all commands.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	// Attach top-level command trees.
	rootCmd.AddCommand(systemcmd.NewSystemCommand())
	rootCmd.AddCommand(httpcmd.NewHTTPCommand())
	rootCmd.AddCommand(queuecmd.NewQueueCommand())
}
