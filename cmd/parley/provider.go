// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage the active provider",
	}

	cmd.AddCommand(
		newProviderListCmd(),
		newProviderSelectCmd(),
	)

	return cmd
}

func newProviderListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List supported providers",
		RunE:  runProviderList,
	}
}

func newProviderSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Switch the active provider",
		Args:  cobra.ExactArgs(1),
		RunE:  runProviderSelect,
	}
}

func runProviderList(cmd *cobra.Command, _ []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	selected, _ := app.Router.Selected()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tCREDENTIAL\tACTIVE")
	for _, d := range app.Router.Registry().All() {
		cred := "not needed"
		if d.RequiresCredential {
			cred = "missing"
			if app.Secrets.Has(d.ID) {
				cred = "stored"
			}
		}
		active := ""
		if d.ID == selected {
			active = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.DisplayName, cred, active)
	}
	return tw.Flush()
}

func runProviderSelect(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	id := args[0]
	if err := app.Router.SelectProvider(cmd.Context(), id); err != nil {
		return describeSelectError(err, id)
	}

	_, model := app.Router.Selected()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Selected provider %s (model %s)\n", id, model)
	return nil
}

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage models for the active provider",
	}

	cmd.AddCommand(
		newModelsListCmd(),
		newModelsSelectCmd(),
		newModelsRefreshCmd(),
		newModelsEnableCmd(),
	)

	return cmd
}

func newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [provider]",
		Short: "List the model catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runModelsList,
	}
}

func newModelsSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <model>",
		Short: "Switch the active model",
		Args:  cobra.ExactArgs(1),
		RunE:  runModelsSelect,
	}
}

func newModelsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [provider]",
		Short: "Re-query the provider's model listing",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runModelsRefresh,
	}
}

func newModelsEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <provider> <model>...",
		Short: "Restrict which models are shown for a provider",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runModelsEnable,
	}
}

func runModelsList(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	providerID := targetProvider(app, args)
	models := app.Router.Models(cmd.Context(), providerID)
	enabled, err := app.Router.EnabledModels(cmd.Context(), providerID)
	if err != nil {
		return err
	}
	_, selectedModel := app.Router.Selected()

	out := cmd.OutOrStdout()
	for _, m := range models {
		if enabled != nil && !slices.Contains(enabled, m) {
			continue
		}
		marker := " "
		if m == selectedModel {
			marker = "*"
		}
		_, _ = fmt.Fprintf(out, "%s %s\n", marker, m)
	}
	return nil
}

func runModelsSelect(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Router.SelectModel(cmd.Context(), args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Selected model %s\n", args[0])
	return nil
}

func runModelsRefresh(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	providerID := targetProvider(app, args)
	models := app.Router.RefreshModels(cmd.Context(), providerID)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d models\n", providerID, len(models))
	return nil
}

func runModelsEnable(cmd *cobra.Command, args []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	providerID := args[0]
	if err := app.Router.SetEnabledModels(cmd.Context(), providerID, args[1:]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Enabled %d models for %s\n", len(args)-1, providerID)
	return nil
}

func targetProvider(app *App, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	selected, _ := app.Router.Selected()
	return selected
}
