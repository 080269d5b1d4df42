package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history <session_id>",
	Short: "Print the messages of a chat session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, store, err := openHistory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		msgs, err := store.ReadAll(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintf(out, "No messages in session %s.\n", args[0])
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(out, "[%s] %s\n\n", m.Role, m.Content)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <user_id>",
	Short: "List the chat sessions of a farmer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, store, err := openHistory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ids, err := store.ListSessionsForUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print messages as JSON")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sessionsCmd)
}
