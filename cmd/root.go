package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kisan-mitra/internal/config"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kisan",
	Short: "Farmer assistant chat backend with long-term memory",
	Long: `Kisan Mitra answers farmer queries through an LLM, keeps the history of
every chat session, and learns durable facts about each farmer (crops, farm
size, pests, goals) into a long-term vector memory that shapes later answers.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
