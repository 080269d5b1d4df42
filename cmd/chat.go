package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kisan-mitra/internal/conversation"
)

var (
	chatUser    string
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the farmer assistant in the terminal",
	Long: `Starts an interactive chat. Replies stream as they are generated.
Type /exit or press Ctrl-D to quit. Facts learned during the chat are saved
before the command exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		ctx, logger, closeLog := newLogger(ctx, cfg)
		defer closeLog()

		st, err := buildStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		session := chatSession
		if session == "" {
			session = chatUser + "_" + uuid.NewString()[:8]
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session %s (user %s). Type /exit to quit.\n", session, chatUser)

		in := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "\n> ")
			if !in.Scan() {
				fmt.Fprintln(out)
				return in.Err()
			}
			line := strings.TrimSpace(in.Text())
			switch line {
			case "":
				continue
			case "/exit", "/quit":
				return nil
			}

			_, err := st.engine.HandleTurn(ctx, conversation.Turn{
				UserID:    chatUser,
				SessionID: session,
				Input:     line,
			}, func(fragment string) error {
				_, err := fmt.Fprint(out, fragment)
				return err
			})
			fmt.Fprintln(out)
			switch {
			case errors.Is(err, conversation.ErrTurnAborted):
				return nil
			case err != nil:
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
		}
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "farmer", "farmer user id")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id (default: new {user}_{random} session)")
	rootCmd.AddCommand(chatCmd)
}
