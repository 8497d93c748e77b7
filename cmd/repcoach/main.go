package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/engine"
	"github.com/claude/repcoach/internal/mcp"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/server"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
	"github.com/claude/repcoach/internal/vision"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve the MCP tools on stdin/stdout instead of HTTP")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the MCP transport in stdio mode.
	logOut := os.Stdout
	if *mcpStdio {
		logOut = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	log.Info("repcoach starting", "version", Version)

	ctx := context.Background()

	// Connect database (optional)
	var store storage.Store
	var ds mcp.DataSource
	if cfg.Database.HistoryEnabled() {
		store, err = storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), cfg.Database.Path)
		if err != nil {
			log.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		ds = store
		log.Info("database ready", "driver", cfg.Database.Driver)
	} else {
		log.Info("set history disabled")
	}

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	e, err := engine.New(engine.Config{
		RepCooldown:       cfg.Engine.RepCooldown,
		EmphasisFrames:    cfg.Engine.EmphasisFrames,
		CalibrationTarget: cfg.Engine.CalibrationTarget,
	})
	if err != nil {
		log.Error("invalid engine config", "error", err)
		os.Exit(1)
	}
	sessions, err := session.NewRegistry(e, models.DefaultMode)
	if err != nil {
		log.Error("failed to create session registry", "error", err)
		os.Exit(1)
	}

	if *mcpStdio {
		// No WebSocket listener in this mode, so only history tools are offered.
		if ds == nil {
			log.Error("-mcp-stdio needs database.driver in the config")
			os.Exit(1)
		}
		if err := mcpserver.ServeStdio(mcp.New(ds, nil, Version, log)); err != nil {
			log.Error("mcp stdio server error", "error", err)
			os.Exit(1)
		}
		return
	}

	// Pose pipeline (optional)
	var pose vision.Estimator
	if cfg.Pose.Enabled {
		est, err := vision.NewYOLOPose(vision.Options{
			ModelPath:   cfg.Pose.ModelPath,
			Confidence:  cfg.Pose.Confidence,
			IoU:         cfg.Pose.IoU,
			InputSize:   cfg.Pose.InputSize,
			MaxWidth:    cfg.Pose.MaxWidth,
			JPEGQuality: cfg.Pose.JPEGQuality,
		}, log)
		switch {
		case errors.Is(err, vision.ErrUnavailable):
			log.Warn("pose pipeline not compiled in, image frames will be dropped (build with -tags gocv)")
		case err != nil:
			log.Error("failed to load pose model", "path", cfg.Pose.ModelPath, "error", err)
			os.Exit(1)
		default:
			pose = est
			defer est.Close()
			log.Info("pose pipeline ready", "model", cfg.Pose.ModelPath)
		}
	}

	// Create server
	mcpSrv := mcp.New(ds, sessions, Version, log)
	srv := server.New(sessions, store, pose, mcpserver.NewStreamableHTTPServer(mcpSrv), server.Options{
		APIKey:          cfg.Auth.APIKey,
		IdleTimeout:     cfg.Server.IdleTimeout,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	}, log)

	// Serve static frontend
	if cfg.Server.StaticDir != "" {
		srv.SetFrontend(os.DirFS(cfg.Server.StaticDir))
		log.Info("serving frontend", "dir", cfg.Server.StaticDir)
	}

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	// Hijacked WebSocket streams are not covered by httpSrv.Shutdown.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("closing coaching streams", "error", err)
	}
	log.Info("server stopped")
}
