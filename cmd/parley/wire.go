// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"os"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/config"
	"github.com/parley-dev/parley/internal/provider"
	"github.com/parley-dev/parley/internal/provider/gemini"
	"github.com/parley-dev/parley/internal/provider/ollama"
	"github.com/parley-dev/parley/internal/provider/openaicompat"
	"github.com/parley-dev/parley/internal/secrets"
	"github.com/parley-dev/parley/internal/store/sqlite"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/spf13/cobra"
)

// App holds the wired subsystems for one command invocation.
type App struct {
	Config     *config.Config
	Secrets    secrets.Store
	Store      *sqlite.Store
	Router     *provider.Router
	Controller *chat.Controller
}

// Close releases the app's resources.
func (a *App) Close() error {
	return a.Store.Close()
}

// appFactory builds the App for a command. Package-level so tests can
// substitute in-memory collaborators.
var appFactory = wireApp

func wireApp(cmd *cobra.Command) (*App, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				cfgPath = defaultPath
			} else if path := config.BootstrapConfig(); path != "" {
				cfgPath = path
			}
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	config.WarnInsecurePermissions(cfgPath)

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	st, err := sqlite.New(dbPath)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "opening session database")
	}

	creds := secrets.NewKeyring()

	registry := provider.NewRegistry()
	router := provider.NewRouter(registry, creds, st)
	for _, a := range buildAdapters(cfg, registry) {
		router.RegisterAdapter(a)
	}
	if err := router.Load(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "restoring provider selection")
	}

	var titles *chat.Synthesizer
	if !cfg.Title.Disabled {
		titles = chat.NewSynthesizer(
			ollama.New(ollama.Config{BaseURL: endpointFor(cfg, registry, provider.ProviderOllama)}),
			cfg.Title.Model,
		)
	}

	controller := chat.NewController(chat.ControllerConfig{
		Dispatcher:    router,
		Sessions:      st,
		Titles:        titles,
		ContextWindow: cfg.Chat.ContextWindow,
	})

	return &App{
		Config:     cfg,
		Secrets:    creds,
		Store:      st,
		Router:     router,
		Controller: controller,
	}, nil
}

// buildAdapters constructs one adapter per backend, honoring configured
// endpoint overrides. OpenAI and DeepSeek share the same wire format.
func buildAdapters(cfg *config.Config, registry *provider.Registry) []provider.Adapter {
	return []provider.Adapter{
		openaicompat.New(openaicompat.Config{
			ProviderID: provider.ProviderOpenAI,
			BaseURL:    endpointFor(cfg, registry, provider.ProviderOpenAI),
		}),
		openaicompat.New(openaicompat.Config{
			ProviderID: provider.ProviderDeepSeek,
			BaseURL:    endpointFor(cfg, registry, provider.ProviderDeepSeek),
		}),
		gemini.New(gemini.Config{
			BaseURL: endpointFor(cfg, registry, provider.ProviderGemini),
		}),
		ollama.New(ollama.Config{
			BaseURL: endpointFor(cfg, registry, provider.ProviderOllama),
		}),
	}
}

func endpointFor(cfg *config.Config, registry *provider.Registry, providerID string) string {
	if ep := cfg.Endpoint(providerID); ep != "" {
		return ep
	}
	desc, err := registry.Get(providerID)
	if err != nil {
		return ""
	}
	return desc.BaseEndpoint
}
