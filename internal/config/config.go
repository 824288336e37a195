// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// Package config implements the JSON configuration file described in
// spec.md §6, loaded once at startup and re-readable on admin request.
// Grounded on config/config.go's Load/Save shape, generalized from
// texelation's single-field schema to the full pixel-server schema.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// General holds top-level identification fields.
type General struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Admin   Admin  `json:"admin"`
}

// Admin holds the bearer-auth admin credential. The password is stored as
// a bcrypt hash, never a plaintext constant -- see SPEC_FULL.md §9 on why
// the historical admin/root123 pair is not shipped.
type Admin struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	JWTSecret    string `json:"jwt_secret"`
}

// Connection holds network binding configuration.
type Connection struct {
	Host    string `json:"host"`
	Ports   Ports  `json:"ports"`
	Timeout int    `json:"timeout"`
}

// Ports holds the two listening ports.
type Ports struct {
	Socket int `json:"socket"`
	API    int `json:"api"`
}

// Visuals holds canvas dimensions and the operator statsbar.
type Visuals struct {
	Size     Size     `json:"size"`
	Statsbar Statsbar `json:"statsbar"`
}

// Size is a width/height pair.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Statsbar toggles the operator-facing stats overlay in the viewer.
type Statsbar struct {
	Enabled bool `json:"enabled"`
	Size    int  `json:"size"`
}

// Game holds gameplay tuning: pixel budgets and godmode.
type Game struct {
	PPS     float64 `json:"pps"`
	Godmode Godmode `json:"godmode"`
}

// Godmode configures the cooldown-waiving feature.
type Godmode struct {
	Enabled bool    `json:"enabled"`
	PPS     float64 `json:"pps"`
}

// Backup configures the raw pixel-grid snapshot loop.
type Backup struct {
	Enabled   bool   `json:"enabled"`
	Interval  int    `json:"interval"`
	Directory string `json:"directory"`
	Delete    int    `json:"delete"`
}

// Timelapse configures the rendered-image snapshot loop.
type Timelapse struct {
	Enabled   bool   `json:"enabled"`
	Interval  int    `json:"interval"`
	Directory string `json:"directory"`
}

// Frontend toggles the three user-facing surfaces.
type Frontend struct {
	Display DisplayFrontend `json:"display"`
	API     APIFrontend     `json:"api"`
	Sockets SocketsFrontend `json:"sockets"`
	Web     WebFrontend     `json:"web"`
}

// DisplayFrontend configures the local tcell viewer.
type DisplayFrontend struct {
	Enabled bool `json:"enabled"`
	FPS     int  `json:"fps"`
}

// APIFrontend configures the HTTP REST surface.
type APIFrontend struct {
	Enabled     bool `json:"enabled"`
	EnableAdmin bool `json:"enable_admin"`
	DeltaCutoff int  `json:"delta_cutoff"`
}

// SocketsFrontend configures the TCP line protocol surface.
type SocketsFrontend struct {
	Enabled     bool `json:"enabled"`
	EnableAdmin bool `json:"enable_admin"`
}

// WebFrontend configures bundled web UI behavior.
type WebFrontend struct {
	ForceReload bool `json:"force_reload"`
}

// Logging configures verbosity, 0 (quiet) through 4 (trace).
type Logging struct {
	Level int `json:"level"`
}

// Config is the top-level configuration document.
type Config struct {
	General    General    `json:"general"`
	Connection Connection `json:"connection"`
	Visuals    Visuals    `json:"visuals"`
	Game       Game       `json:"game"`
	Backup     Backup     `json:"backup"`
	Timelapse  Timelapse  `json:"timelapse"`
	Frontend   Frontend   `json:"frontend"`
	Logging    Logging    `json:"logging"`
}

// ErrMalformedConfig wraps a JSON decoding failure with the offending file
// name, per spec.md §7's configuration error taxonomy.
type ErrMalformedConfig struct {
	Path string
	Err  error
}

func (e *ErrMalformedConfig) Error() string {
	return fmt.Sprintf("config: malformed config file %s: %v", e.Path, e.Err)
}

func (e *ErrMalformedConfig) Unwrap() error { return e.Err }

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		General: General{Name: "pixelwell", Version: "dev"},
		Connection: Connection{
			Host:    "0.0.0.0",
			Ports:   Ports{Socket: 1234, API: 8080},
			Timeout: 10,
		},
		Visuals: Visuals{
			Size:     Size{Width: 1280, Height: 720},
			Statsbar: Statsbar{Enabled: true, Size: 20},
		},
		Game: Game{
			PPS:     10,
			Godmode: Godmode{Enabled: false, PPS: 1000},
		},
		Backup: Backup{
			Enabled:   true,
			Interval:  300,
			Directory: "backups",
			Delete:    0,
		},
		Timelapse: Timelapse{
			Enabled:   false,
			Interval:  60,
			Directory: "timelapse",
		},
		Frontend: Frontend{
			Display: DisplayFrontend{Enabled: true, FPS: 30},
			API:     APIFrontend{Enabled: true, EnableAdmin: true, DeltaCutoff: 1000},
			Sockets: SocketsFrontend{Enabled: true, EnableAdmin: false},
			Web:     WebFrontend{ForceReload: false},
		},
		Logging: Logging{Level: 2},
	}
}

// Load reads and parses the configuration file at path. Unlike the
// teacher's config.Load, a missing or malformed file here is fatal for the
// caller to report (spec.md §7 treats NoConfig/MalformedConfig as
// startup-fatal, not "fall back to defaults").
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: no config at %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &ErrMalformedConfig{Path: path, Err: err}
	}
	return cfg, nil
}

// Reloader holds the path a Config was loaded from and reloads it on
// request (internal/httpapi's /admin/reload), logging success/failure the
// way the teacher's SIGHUP handler logs theme.Reload().
type Reloader struct {
	path   string
	logger *log.Logger
}

// NewReloader creates a reloader bound to path.
func NewReloader(path string, logger *log.Logger) *Reloader {
	return &Reloader{path: path, logger: logger}
}

// Reload re-reads the configuration file.
func (r *Reloader) Reload() (*Config, error) {
	cfg, err := Load(r.path)
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("config: reload failed: %v", err)
		}
		return nil, err
	}
	if r.logger != nil {
		r.logger.Printf("config: reloaded from %s", r.path)
	}
	return cfg, nil
}
