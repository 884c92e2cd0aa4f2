package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored conversation sessions",
	}
	cmd.AddCommand(
		newSessionsListCommand(flags),
		newSessionsShowCommand(flags),
		newSessionsDeleteCommand(flags),
	)
	return cmd
}

func newSessionsListCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(flags)
			if err != nil {
				return err
			}
			defer c.Cleanup()

			ctx := cmd.Context()
			store, closeStore, err := openSessionStore(ctx, c.Runtime)
			if err != nil {
				return err
			}
			defer closeStore()

			ids, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, gray("no sessions"))
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}

func newSessionsShowCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show SESSION",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(flags)
			if err != nil {
				return err
			}
			defer c.Cleanup()

			ctx := cmd.Context()
			store, closeStore, err := openSessionStore(ctx, c.Runtime)
			if err != nil {
				return err
			}
			defer closeStore()

			sess, err := store.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("show session: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", bold(sess.ID))
			fmt.Fprintf(out, "%s\n", gray(fmt.Sprintf("created %s, updated %s",
				sess.CreatedAt.Format("2006-01-02 15:04:05"),
				sess.UpdatedAt.Format("2006-01-02 15:04:05"))))
			if sess.State == nil || len(sess.State.Messages) == 0 {
				fmt.Fprintln(out, gray("empty"))
				return nil
			}
			fmt.Fprintln(out)
			printTranscript(out, sess.State.Messages)
			return nil
		},
	}
}

func newSessionsDeleteCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SESSION...",
		Short: "Delete sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(flags)
			if err != nil {
				return err
			}
			defer c.Cleanup()

			ctx := cmd.Context()
			store, closeStore, err := openSessionStore(ctx, c.Runtime)
			if err != nil {
				return err
			}
			defer closeStore()

			out := cmd.OutOrStdout()
			for _, id := range args {
				if err := store.Delete(ctx, id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(out, "%s %s\n", green("deleted"), id)
			}
			return nil
		},
	}
}
