package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/oneclient/pkg/auth"
	"github.com/cuemby/oneclient/pkg/clientcontext"
	"github.com/cuemby/oneclient/pkg/config"
	"github.com/cuemby/oneclient/pkg/events"
	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metacache"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "oneclient-core-demo",
	Short: "Exercises the distributed-filesystem client core end-to-end",
	Long: `oneclient-core-demo drives pkg/clientcontext against a local fake
provider: it establishes a session, installs subscriptions, renews a file
location, and pushes a few read/write events, then serves /healthz,
/readyz and /metrics until interrupted.

It is a manual smoke-testing aid, not part of the client core itself.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(demoCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the client core against an in-process fake provider",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().String("config", "", "Path to a YAML config file overriding the defaults")
	demoCmd.Flags().String("diag-addr", "127.0.0.1:8089", "Address for the diagnostics HTTP server")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if cfg.Session.Hostname == "" {
		hostname, _ := os.Hostname()
		cfg.Session.Hostname = hostname
	}
	if cfg.Session.SessionID == "" {
		cfg.Session.SessionID = uuid.New().String()
	}
	if cfg.Auth.TokenStorageDir == "" {
		dir, err := os.MkdirTemp("", "oneclient-demo-tokens-*")
		if err != nil {
			return fmt.Errorf("create token storage dir: %w", err)
		}
		defer os.RemoveAll(dir)
		cfg.Auth.TokenStorageDir = dir
	}

	addr, stopProvider, err := startFakeProvider()
	if err != nil {
		return err
	}
	defer stopProvider()
	cfg.Provider.Endpoint = addr
	cfg.Provider.PoolSize = 1

	store := auth.NewTokenStore(cfg.Auth.TokenStorageDir)
	if err := store.Save(&auth.StoredToken{
		AccessToken:  "demo-initial-access-token",
		RefreshToken: "demo-initial-refresh-token",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}); err != nil {
		return fmt.Errorf("seed demo token: %w", err)
	}

	cctx, err := clientcontext.New(cfg, clientcontext.Options{
		Helpers:        newDemoHelperFactory(),
		TokenRefresher: &demoTokenRefresher{},
	})
	if err != nil {
		return fmt.Errorf("construct client context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cctx.Start(ctx); err != nil {
		return fmt.Errorf("start client context: %w", err)
	}
	fmt.Println("session established against fake provider at", addr)

	exerciseCore(cctx)

	diagAddr, _ := cmd.Flags().GetString("diag-addr")
	diagSrv := &http.Server{Addr: diagAddr, Handler: cctx.Checker().Router()}
	go func() {
		if err := diagSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("diagnostics server stopped unexpectedly")
		}
	}()
	fmt.Println("diagnostics server listening on", diagAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nshutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = diagSrv.Shutdown(shutdownCtx)
	cctx.Close(shutdownCtx)

	return nil
}

// exerciseCore drives a handful of representative operations so the demo
// visibly touches every wired subsystem: attribute cache, subscriptions,
// location renewal, and event emission.
func exerciseCore(cctx *clientcontext.Context) {
	ctx := context.Background()
	fileID := "demo-file-1"
	now := time.Now()

	cctx.Services.Attributes.Put(fileID, metacache.Attributes{
		FileID: fileID, Size: 1024, ATime: now, MTime: now, CTime: now, Mode: 0o644,
	})

	if err := cctx.Services.Subscriptions.Acquire(ctx, wire.SubscriptionFileAttr, fileID); err != nil {
		log.Logger.Warn().Err(err).Msg("demo: attribute subscription failed")
	}

	// An already-expired location with no open refs triggers an immediate
	// renewal fetch from the fake provider, exercising pkg/clientcontext's
	// locationRenewer round trip.
	cctx.Services.Locations.Put(fileID, metacache.Location{
		FileID: fileID, StorageID: "demo-storage", StorageFileID: "stale", ValidTo: now.Add(-time.Minute),
	})

	if _, err := cctx.Services.Helpers.Get(ctx, "demo-storage", false); err != nil {
		log.Logger.Warn().Err(err).Msg("demo: helper construction failed")
	}

	cctx.Services.Events.PushRead(fileID, 4096, []events.Block{{Offset: 0, Size: 4096}})
	cctx.Services.Events.PushWrite(fileID, 2048, 8192, []events.Block{{Offset: 4096, Size: 2048}})
}
