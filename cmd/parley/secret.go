// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/spf13/cobra"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage provider credentials in the OS keyring",
		Long:  "Store, list, and delete provider credentials kept under the Parley service in the operating system keyring.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider>",
		Short: "Store a provider credential, read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretSet,
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers with a stored credential",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <provider>",
		Short: "Delete a provider's stored credential",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	providerID := args[0]
	if _, err := app.Router.Registry().Get(providerID); err != nil {
		return err
	}

	// Read the credential from stdin so it never lands in shell history.
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Credential for %s: ", providerID)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return parleyerr.Errorf(parleyerr.CodeCLIInputInvalid, "reading credential: %w", err)
	}
	credential := strings.TrimSpace(line)
	if credential == "" {
		return parleyerr.New(parleyerr.CodeCLIInputInvalid, "credential must not be empty")
	}

	if err := app.Secrets.Set(providerID, credential); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored credential for %s\n", providerID)
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	keys, err := app.Secrets.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No credentials stored.")
		return nil
	}
	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Secrets.Delete(args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted credential for %s\n", args[0])
	return nil
}
