// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message and print the streamed reply",
		Long:  "Send a message to the selected provider. A new session is created unless --session resumes an existing one.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runChat,
	}

	cmd.Flags().StringP("session", "s", "", "resume existing session by ID")
	cmd.Flags().String("selection", "", "attach external text as context")

	cmd.AddCommand(
		newChatRegenerateCmd(),
		newChatEditCmd(),
	)

	return cmd
}

func newChatRegenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate <message-id>",
		Short: "Generate a new response variant for an assistant message",
		Args:  cobra.ExactArgs(1),
		RunE:  runChatRegenerate,
	}
	cmd.Flags().StringP("session", "s", "", "session ID (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newChatEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <message-id> <new content>",
		Short: "Edit a prior user message and resend from that point",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runChatEdit,
	}
	cmd.Flags().StringP("session", "s", "", "session ID (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	sessionID, _ := cmd.Flags().GetString("session")
	selection, _ := cmd.Flags().GetString("selection")

	_, model := app.Router.Selected()

	var s *store.Session
	if sessionID != "" {
		s, err = app.Store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		s.Materialized = true
		// A resumed session follows the active selection.
		if s.Model != model {
			s.Model = model
			if err := app.Store.SetModel(ctx, s.ID, model); err != nil {
				return err
			}
		}
	} else {
		s = store.NewSession(model)
	}

	msg, err := app.Controller.Send(ctx, s, chat.SendInput{
		Content:   strings.Join(args, " "),
		Selection: selection,
	})
	if err != nil {
		return err
	}
	app.Controller.Wait(s.ID)

	out := cmd.OutOrStdout()
	printReply(cmd, s, msg)
	if sessionID == "" {
		_, _ = fmt.Fprintf(out, "\nSession: %s\n", s.ID)
	}
	return nil
}

func runChatRegenerate(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	sessionID, _ := cmd.Flags().GetString("session")

	s, err := app.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Materialized = true

	msg, _ := s.FindMessage(args[0])
	if err := app.Controller.Regenerate(ctx, s, args[0]); err != nil {
		return err
	}
	app.Controller.Wait(s.ID)

	printReply(cmd, s, msg)
	return nil
}

func runChatEdit(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	sessionID, _ := cmd.Flags().GetString("session")

	s, err := app.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Materialized = true

	msg, err := app.Controller.EditAndResend(ctx, s, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	app.Controller.Wait(s.ID)

	printReply(cmd, s, msg)
	return nil
}

// printReply writes the finished assistant text, or the trailing error
// turn when the generation failed.
func printReply(cmd *cobra.Command, s *store.Session, msg *store.Message) {
	out := cmd.OutOrStdout()

	if msg != nil && msg.Content() != "" {
		_, _ = fmt.Fprintln(out, chat.CloseThinkForDisplay(msg.Content()))
	}
	if len(s.Messages) == 0 {
		return
	}
	last := s.Messages[len(s.Messages)-1]
	if msg != nil && last.ID != msg.ID && last.Role == store.RoleAssistant {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), last.Content())
	}
}

// describeSelectError renders the router's needs-setup signal as a hint
// instead of a bare error.
func describeSelectError(err error, providerID string) error {
	if parleyerr.HasCode(err, parleyerr.CodeProviderCredentialMissing) {
		return parleyerr.Errorf(parleyerr.CodeProviderCredentialMissing,
			"provider %s needs a credential: run `parley secret set %s` first", providerID, providerID)
	}
	return err
}
