// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/store"
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage chat sessions",
	}

	cmd.AddCommand(
		newSessionListCmd(),
		newSessionShowCmd(),
		newSessionRenameCmd(),
		newSessionDeleteCmd(),
	)

	return cmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently modified first",
		RunE:  runSessionList,
	}
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session's conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionShow,
	}
}

func newSessionRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSessionRename,
	}
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionDelete,
	}
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	sessions, err := app.Store.ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		_, _ = fmt.Fprintln(out, "No sessions found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTITLE\tMODEL\tMODIFIED")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			s.ID, s.Title, s.Model, s.LastModifiedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.Store.GetSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s (%s)\n\n", s.Title, s.Model)
	for _, m := range s.Messages {
		label := "You"
		if m.Role == store.RoleAssistant {
			label = "Assistant"
		}
		variant := ""
		if len(m.Responses) > 1 {
			variant = fmt.Sprintf(" [variant %d/%d]", m.CurrentResponse+1, len(m.Responses))
		}
		_, _ = fmt.Fprintf(out, "%s (%s)%s:\n%s\n\n",
			label, m.ID, variant, chat.CloseThinkForDisplay(m.Content()))
	}
	return nil
}

func runSessionRename(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	title := strings.Join(args[1:], " ")
	if err := app.Store.UpdateTitle(cmd.Context(), args[0], title); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Renamed session %s to %q\n", args[0], title)
	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Store.DeleteSession(cmd.Context(), args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
	return nil
}
