package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tabula/pkg/types/message"
)

func newTurnCommand(flags *rootFlags) *cobra.Command {
	var (
		sessionID        string
		attachPaths      []string
		maxHistoryTokens int
	)

	cmd := &cobra.Command{
		Use:   "turn [flags] [MESSAGE...]",
		Short: "Run one conversation turn",
		Long: `Turn sends a user message through the agent and prints the messages it
produces. Attach data files with -a to have them read and summarized;
without attachments the turn is answered from the conversation so far.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(attachPaths) == 0 {
				return fmt.Errorf("turn requires a message or at least one attachment")
			}

			c, err := buildContainer(flags)
			if err != nil {
				return err
			}
			defer c.Cleanup()

			ctx := cmd.Context()
			runtime, err := buildAgentRuntime(ctx, c, maxHistoryTokens)
			if err != nil {
				return err
			}
			defer runtime.Close()

			msg := message.NewUserMessage(strings.Join(args, " "))
			if len(attachPaths) > 0 {
				attachments := make([]message.Attachment, 0, len(attachPaths))
				for _, path := range attachPaths {
					att, err := buildAttachment(path)
					if err != nil {
						return err
					}
					attachments = append(attachments, att)
				}
				msg.WithAttachments(attachments...)
			}

			sess, produced, err := runtime.Runner.Turn(ctx, sessionID, msg)
			if err != nil {
				return err
			}
			c.Logger.Info("Turn finished",
				"session_id", sess.ID,
				"messages", len(produced),
				"attachments", len(attachPaths))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", gray("session "+sess.ID))
			printTranscript(out, produced)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Continue this session instead of starting a new one")
	cmd.Flags().StringArrayVarP(&attachPaths, "attach", "a", nil, "Attach a data file (repeatable)")
	cmd.Flags().IntVar(&maxHistoryTokens, "max-history-tokens", 0, "Token budget for conversation history (0 means unlimited)")
	return cmd
}

// buildAttachment describes a local file as a message attachment.
func buildAttachment(path string) (message.Attachment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return message.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return message.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}
	if info.IsDir() {
		return message.Attachment{}, fmt.Errorf("attach %s: is a directory", path)
	}
	uri := url.URL{Scheme: "file", Path: abs}
	return message.Attachment{
		Filename:  filepath.Base(abs),
		URI:       uri.String(),
		MediaType: mediaTypeForFile(abs),
		Size:      info.Size(),
	}, nil
}

// mediaTypeForFile maps the table formats the reader accepts to MIME types.
// Unknown extensions yield an empty type; the reader rejects them later with
// a clearer error than a guess here would produce.
func mediaTypeForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	case ".xlsx", ".xlsm":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls", ".xlsb":
		return "application/vnd.ms-excel"
	case ".ods", ".odf", ".odt":
		return "application/vnd.oasis.opendocument.spreadsheet"
	default:
		return ""
	}
}

// printTranscript renders messages as a speaker-tagged transcript.
func printTranscript(out io.Writer, msgs []*message.Message) {
	for _, m := range msgs {
		fmt.Fprintln(out, roleLabel(m.Role))
		fmt.Fprintln(out, strings.TrimRight(m.Text(), "\n"))
		fmt.Fprintln(out)
	}
}

// roleLabel renders a colored speaker tag.
func roleLabel(role message.Role) string {
	switch role {
	case message.RoleUser:
		return blue("[user]")
	case message.RoleAssistant:
		return green("[assistant]")
	case message.RoleSystem:
		return yellow("[system]")
	case message.RoleTool:
		return cyan("[tool]")
	default:
		return gray("[" + string(role) + "]")
	}
}
