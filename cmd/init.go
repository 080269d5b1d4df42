package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kisan-mitra/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize kisan configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose the LLM provider, fact index and server settings, and writes a .kisan.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
