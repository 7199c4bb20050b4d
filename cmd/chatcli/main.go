// Command chatcli is a terminal client for the chat API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/riyak972/capstone-chat/internal/auth"
	"github.com/riyak972/capstone-chat/internal/config"
	"github.com/riyak972/capstone-chat/internal/domain"
)

var (
	addr  string
	token string
)

var rootCmd = &cobra.Command{
	Use:           "chatcli",
	Short:         "Talk to the chat API from a terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&addr, "addr", "http://localhost:8080", "API base URL")
	flags.StringVar(&token, "token", os.Getenv("CHAT_TOKEN"), "bearer token (defaults to $CHAT_TOKEN)")

	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newWSCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chatcli: %v\n", err)
		os.Exit(1)
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			tok, exp, err := auth.IssueToken(secret, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}

	secretDefault := os.Getenv("JWT_SECRET")
	if secretDefault == "" {
		secretDefault = config.DefaultJWTSecret
	}
	flags := cmd.Flags()
	flags.StringVar(&userID, "user", "", "user id to embed in the token")
	flags.StringVar(&secret, "secret", secretDefault, "signing secret (defaults to $JWT_SECRET)")
	flags.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := NewClient(addr, token).ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return writeSessions(cmd.OutOrStdout(), sessions)
		},
	}

	var title string
	create := &cobra.Command{
		Use:   "new",
		Short: "Create a session and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := NewClient(addr, token).CreateSession(cmd.Context(), title)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID)
			return nil
		},
	}
	create.Flags().StringVar(&title, "title", "", "session title")

	cmd.AddCommand(list, create)
	return cmd
}

func writeSessions(w io.Writer, sessions []domain.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPROVIDER\tTOKENS\tLAST ACTIVE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
			s.ID, s.Title, s.Provider, s.TokenBudget.Used, s.TokenBudget.Max,
			s.LastActivityAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func newChatCmd() *cobra.Command {
	var (
		sessionID   string
		providerArg string
		model       string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}
			req := domain.ChatRequest{
				SessionID: sessionID,
				Content:   strings.Join(args, " "),
				Provider:  providerArg,
				Model:     model,
			}
			out := cmd.OutOrStdout()
			color := isTerminal(out)

			var (
				streamErr error
				trailer   string
			)
			err := NewClient(addr, token).StreamChat(cmd.Context(), req, func(c domain.Chunk) error {
				switch {
				case c.Type == domain.ChunkTypeText:
					fmt.Fprint(out, c.Delta)
				case c.IsEvent(domain.EventError):
					streamErr = chunkError(c)
				case c.IsEvent(domain.EventEnd):
					data, _ := c.Data.(map[string]any)
					trailer = fmt.Sprintf(" [%v/%v]", data["provider"], data["model"])
				}
				return nil
			})
			if color && trailer != "" {
				fmt.Fprint(out, "\x1b[2m"+trailer+"\x1b[0m")
			}
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			return streamErr
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&sessionID, "session", "", "session id")
	flags.StringVar(&providerArg, "provider", "", "provider override")
	flags.StringVar(&model, "model", "", "model override")
	return cmd
}

// chunkError turns an error event into an error.
func chunkError(c domain.Chunk) error {
	data, _ := c.Data.(map[string]any)
	code, _ := data["code"].(string)
	msg, _ := data["message"].(string)
	if code == "" {
		return errors.New("stream failed")
	}
	return fmt.Errorf("%s: %s", code, msg)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
