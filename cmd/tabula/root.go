package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is stamped by the release build.
var Version = "0.1.0"

// Color definitions shared by the commands
var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// rootFlags carries the persistent flags into the subcommands.
type rootFlags struct {
	configPath string
	provider   string
	model      string
	locale     string
	verbose    bool
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "tabula",
		Short: "Conversational agent for tabular data",
		Long: fmt.Sprintf(`%s

tabula answers questions about CSV, TSV and Excel files. Attachments are
parsed with automatic encoding detection, their columns are indexed for
retrieval, and analysis turns run against a chat model with the relevant
column context inlined.

%s
  tabula detect data.csv                     # Show encoding candidates
  tabula ingest data.csv sales.xlsx          # Parse files and preview them
  tabula turn -a data.csv "load this"        # Start a session with a file
  tabula turn -s <id> "mean of column age?"  # Continue the conversation
  tabula sessions list                       # List stored sessions`,
			bold("tabula "+Version),
			bold("EXAMPLES:")),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&flags.provider, "provider", "", "Chat provider override (openai, openrouter, deepseek, mock)")
	rootCmd.PersistentFlags().StringVarP(&flags.model, "model", "m", "", "Chat model override")
	rootCmd.PersistentFlags().StringVar(&flags.locale, "locale", "", "Reply locale override")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newDetectCommand(flags))
	rootCmd.AddCommand(newIngestCommand(flags))
	rootCmd.AddCommand(newTurnCommand(flags))
	rootCmd.AddCommand(newSessionsCommand(flags))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tabula %s\n", Version)
		},
	}
}
