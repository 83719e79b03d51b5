// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/lecture-engine/internal/history"
	"github.com/pdiddy/lecture-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP with Server-Sent Events",
	Long: `Serve starts an HTTP server. POST /api/generate takes a JSON generation
request and streams pipeline events as Server-Sent Events; closing the
connection cancels the run. GET /api/runs and GET /api/runs/{id} read the
run history.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().Bool("no-history", false, "do not record runs or serve the history endpoints")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		logLevel.SetLevel(zap.InfoLevel)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	client, err := newClient(cfg.LLM, loadedSecrets, logger)
	if err != nil {
		return err
	}

	var store *history.Store
	if off, _ := cmd.Flags().GetBool("no-history"); !off {
		store, err = openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	orch, err := newOrchestrator(cfg, client, store, nil)
	if err != nil {
		return err
	}

	var srv *server.Server
	if store != nil {
		srv, err = server.New(orch, store, logger)
	} else {
		srv, err = server.New(orch, nil, logger)
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
