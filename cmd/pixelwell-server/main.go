// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/pixelwell-server/main.go
// Summary: Implements main capabilities for the pixel server harness.
// Usage: Executed by operators to start the production server that owns the shared canvas.
// Notes: Focuses on wiring flags and lifecycle around the internal packages; no ambient singletons.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flag"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/framegrace/pixelwell/internal/backup"
	"github.com/framegrace/pixelwell/internal/canvas"
	"github.com/framegrace/pixelwell/internal/clients"
	"github.com/framegrace/pixelwell/internal/config"
	"github.com/framegrace/pixelwell/internal/dispatcher"
	"github.com/framegrace/pixelwell/internal/heart"
	"github.com/framegrace/pixelwell/internal/httpapi"
	"github.com/framegrace/pixelwell/internal/pwlog"
	"github.com/framegrace/pixelwell/internal/sockserv"
	"github.com/framegrace/pixelwell/internal/viewer"
)

func main() {
	configPath := flag.String("c", "Config/config.json", "path to the JSON configuration file")
	debug := flag.Bool("d", false, "enable debug logging")
	flag.Parse()

	pwlog.SetVerbose(*debug)
	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pixelwell: %v\n", err)
		os.Exit(1)
	}
	pwlog.Debug.Printf("loaded config from %s: %+v", *configPath, cfg)

	clock := heart.NewClock()
	store := heart.New(cfg.Visuals.Size.Width, cfg.Visuals.Size.Height, clock)
	stats := heart.NewStats()
	cv := canvas.New(store, stats, time.Second/30, logger)
	registry := clients.New(cfg.Game.PPS, cfg.Game.Godmode.PPS)
	d := dispatcher.New(logger)

	sockserv.RegisterVerbs(d, cv, registry, sockserv.VerbOptions{
		GodmodeEnabled: cfg.Game.Godmode.Enabled,
		ServerName:     cfg.General.Name,
		ServerVersion:  cfg.General.Version,
	})

	stop := make(chan struct{})
	clockStop := make(chan struct{})
	go clock.Start(clockStop)

	var backupEngine *backup.Engine
	if cfg.Backup.Enabled {
		backupEngine = backup.NewEngine(store, cfg.Backup.Directory,
			time.Duration(cfg.Backup.Interval)*time.Second,
			time.Duration(cfg.Backup.Delete)*time.Second, logger)
		backupEngine.RestoreLatest()
		backupEngine.Start(stop)
	}

	var timelapseEngine *backup.TimelapseEngine
	if cfg.Timelapse.Enabled {
		timelapseEngine = backup.NewTimelapseEngine(store, cfg.Timelapse.Directory,
			time.Duration(cfg.Timelapse.Interval)*time.Second, logger)
		timelapseEngine.Start(stop)
	}

	cv.Start()
	defer cv.Stop()

	var tcpListener *sockserv.Listener
	if cfg.Frontend.Sockets.Enabled {
		tcpListener = sockserv.NewListener(
			fmt.Sprintf("%s:%d", cfg.Connection.Host, cfg.Connection.Ports.Socket),
			registry, d, time.Duration(cfg.Connection.Timeout)*time.Second, logger)
		if err := tcpListener.Start(); err != nil {
			logger.Printf("pixelwell: TCP frontend disabled: %v", err)
		} else {
			logger.Printf("pixelwell: TCP listening on %s", tcpListener.Addr())
		}
	}

	var httpServer *http.Server
	var api *httpapi.Server
	if cfg.Frontend.API.Enabled {
		reloader := config.NewReloader(*configPath, logger)
		api = httpapi.New(cv, registry, cfg, reloader, logger)
		httpServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Connection.Host, cfg.Connection.Ports.API),
			Handler: api.Router(),
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("pixelwell: HTTP frontend error: %v", err)
			}
		}()
		logger.Printf("pixelwell: HTTP listening on %s", httpServer.Addr)
	}

	var viewerDone chan struct{}
	if cfg.Frontend.Display.Enabled && !term.IsTerminal(int(os.Stdout.Fd())) {
		logger.Println("pixelwell: stdout is not a terminal, viewer disabled")
	} else if cfg.Frontend.Display.Enabled {
		screen, err := tcell.NewScreen()
		if err != nil {
			logger.Printf("pixelwell: viewer disabled, no terminal available: %v", err)
		} else {
			v := viewer.New(screen, cv, registry, cfg.Visuals.Statsbar.Enabled, cfg.Visuals.Statsbar.Size)
			v.RegisterRefreshHandler(d)
			cv.SetOnDrain(func() { d.Trigger(viewer.RefreshEvent, nil) })
			viewerDone = make(chan struct{})
			go func() {
				defer close(viewerDone)
				if err := v.Run(stop); err != nil {
					logger.Printf("pixelwell: viewer exited: %v", err)
				}
			}()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigCh
		if sig == syscall.SIGHUP {
			logger.Println("pixelwell: received SIGHUP, reloading configuration")
			if api != nil {
				if err := api.ReloadNow(); err != nil {
					logger.Printf("pixelwell: reload failed: %v", err)
				}
			}
			continue
		}
		break
	}

	logger.Println("pixelwell: shutting down")
	close(stop)
	close(clockStop)
	if tcpListener != nil {
		tcpListener.Stop()
	}
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(ctx)
		cancel()
	}
	if backupEngine != nil {
		backupEngine.Stop()
	}
	if timelapseEngine != nil {
		timelapseEngine.Stop()
	}
	if viewerDone != nil {
		<-viewerDone
	}
	logger.Println("pixelwell: stopped")
}
