// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/parley-dev/parley/pkg/health"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the database, config, stored credentials, and each provider's reachability.",
		RunE:  runDoctor,
	}

	cmd.Flags().Bool("json", false, "emit the report as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	app, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	report := buildReport(cmd.Context(), app)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "%-20s parley %s (%s/%s)\n", "Binary:", version, runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "%-20s %s\n", "Database:", report.Database)
	_, _ = fmt.Fprintf(w, "%-20s %s\n", "Config:", report.Config)
	for _, m := range report.Providers {
		_, _ = fmt.Fprintf(w, "%-20s %s\n", m.Provider+":", describeMetrics(m))
	}
	return nil
}

func buildReport(ctx context.Context, app *App) health.Report {
	report := health.Report{
		Database: checkDatabase(ctx, app),
		Config:   checkConfig(app),
	}

	for _, d := range app.Router.Registry().All() {
		m := health.Metrics{
			Provider:         d.ID,
			CredentialNeeded: d.RequiresCredential,
			CheckedAt:        time.Now(),
		}
		if d.RequiresCredential {
			m.CredentialStored = app.Secrets.Has(d.ID)
		}

		// A fresh catalog fetch doubles as a reachability probe; backends
		// without live discovery report their candidate list.
		models := app.Router.RefreshModels(ctx, d.ID)
		m.CatalogSize = len(models)
		m.Available = len(models) > 0 && (!d.RequiresCredential || m.CredentialStored)

		report.Providers = append(report.Providers, m)
	}
	return report
}

func checkDatabase(ctx context.Context, app *App) string {
	sessions, err := app.Store.ListSessions(ctx)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("ok (%d sessions)", len(sessions))
}

func checkConfig(app *App) string {
	dir, err := app.Config.DataDir()
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("data dir %s", dir)
}

func describeMetrics(m health.Metrics) string {
	switch {
	case m.CredentialNeeded && !m.CredentialStored:
		return fmt.Sprintf("credential missing (%d models listed)", m.CatalogSize)
	case m.Available:
		return fmt.Sprintf("ok (%d models)", m.CatalogSize)
	default:
		return "unavailable"
	}
}
