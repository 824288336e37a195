// Package httpapi implements the REST surface of spec.md §6: a thin
// adapter mapping HTTP requests onto canvas/client-registry operations.
// Routing uses gorilla/mux (grounded on other_examples/manifests' wide use
// of it across the pack, e.g. ClusterCockpit-cc-backend and moby-moby);
// bearer-token auth uses golang-jwt/jwt/v5 (same grounding).
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/framegrace/pixelwell/internal/canvas"
	"github.com/framegrace/pixelwell/internal/clients"
	"github.com/framegrace/pixelwell/internal/config"
	"github.com/framegrace/pixelwell/internal/imaging"
)

// Server holds the dependencies every route handler needs. Nothing here is
// an ambient singleton: the composition root builds one and wires it into
// a mux.Router, per spec.md §9's "explicit owner passed through composition
// root" guidance.
type Server struct {
	canvas    *canvas.Canvas
	registry  *clients.Registry
	reloader  *config.Reloader
	cfg       atomic.Pointer[config.Config]
	logger    *log.Logger
	enableAdm bool
}

// New creates an HTTP API server bound to cv and registry, using the
// initial configuration cfg (later replaceable via ReloadNow).
func New(cv *canvas.Canvas, registry *clients.Registry, cfg *config.Config, reloader *config.Reloader, logger *log.Logger) *Server {
	s := &Server{
		canvas:    cv,
		registry:  registry,
		reloader:  reloader,
		logger:    logger,
		enableAdm: cfg.Frontend.API.EnableAdmin,
	}
	s.cfg.Store(cfg)
	return s
}

func (s *Server) config() *config.Config { return s.cfg.Load() }

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Router builds the full mux.Router described in spec.md §6.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/canvas/", s.handleCanvasImage).Methods(http.MethodGet)
	r.HandleFunc("/canvas/size", s.handleCanvasSize).Methods(http.MethodGet)
	r.HandleFunc("/canvas/pps", s.handleCanvasPPS).Methods(http.MethodGet)
	r.HandleFunc("/canvas/pixel", s.handleGetPixel).Methods(http.MethodGet)
	r.HandleFunc("/canvas/pixel", s.handlePutPixel).Methods(http.MethodPut)
	r.HandleFunc("/canvas/since", s.handleSince).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/admin/pixel", s.requireAdmin(s.handleAdminPixel)).Methods(http.MethodPut)
	r.HandleFunc("/admin/reload", s.requireAdmin(s.handleAdminReload)).Methods(http.MethodGet)
	r.Use(func(next http.Handler) http.Handler { return s.withRequestLog(next) })
	return r
}

// clientIP extracts the bare IP from a request's RemoteAddr, falling back
// to the raw value if it carries no port (e.g. under some test harnesses).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// handleCanvasImage returns the full canvas as an image.
//
// spec.md calls for image/webp here, but no WEBP *encoder* appears
// anywhere in the reference corpus -- golang.org/x/image/webp only
// decodes. Rather than fabricate a dependency the corpus never reaches
// for, this encodes PNG via the standard library (internal/imaging) and
// is honest about it in the Content-Type it sends. See DESIGN.md.
func (s *Server) handleCanvasImage(w http.ResponseWriter, r *http.Request) {
	store := s.canvas.Store()
	png, err := imaging.EncodePNG(store.FullImage(), store.Width(), store.Height())
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleCanvasSize(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"x": s.canvas.Width(), "y": s.canvas.Height()})
}

func (s *Server) handleCanvasPPS(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	pps := s.registry.Ensure(ip).PPS()
	writeJSON(w, http.StatusOK, map[string]float64{"pps": pps})
}

func parseCoordParams(r *http.Request) (x, y int, ok bool) {
	xs := r.URL.Query().Get("x")
	ys := r.URL.Query().Get("y")
	xi, err1 := strconv.Atoi(xs)
	yi, err2 := strconv.Atoi(ys)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return xi, yi, true
}

func (s *Server) handleGetPixel(w http.ResponseWriter, r *http.Request) {
	x, y, ok := parseCoordParams(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "x and y must be integers")
		return
	}
	store := s.canvas.Store()
	if !store.InBounds(x, y) {
		writeError(w, http.StatusUnprocessableEntity, "coordinate out of bounds")
		return
	}
	rgb := store.Read(x, y)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%02x%02x%02x", rgb.R, rgb.G, rgb.B)
}

// parseHexColor accepts a 6-hex (RRGGBB, implicit A=255) or 8-hex
// (RRGGBBAA) color string, matching internal/sockserv's wire format.
func parseHexColor(s string) (r, g, b, a uint8, ok bool) {
	if len(s) != 6 && len(s) != 8 {
		return 0, 0, 0, 0, false
	}
	raw := make([]byte, len(s)/2)
	for i := range raw {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return 0, 0, 0, 0, false
		}
		raw[i] = uint8(v)
	}
	a = 255
	if len(raw) == 4 {
		a = raw[3]
	}
	return raw[0], raw[1], raw[2], a, true
}

func (s *Server) handlePutPixel(w http.ResponseWriter, r *http.Request) {
	x, y, ok := parseCoordParams(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "x and y must be integers")
		return
	}
	store := s.canvas.Store()
	if !store.InBounds(x, y) {
		writeError(w, http.StatusUnprocessableEntity, "coordinate out of bounds")
		return
	}
	red, green, blue, alpha, ok := parseHexColor(r.URL.Query().Get("color"))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "malformed color")
		return
	}
	ip := clientIP(r)
	if remaining := s.registry.CooldownRemaining(ip); remaining > 0 {
		writeError(w, http.StatusForbidden, fmt.Sprintf("on cooldown for %s", remaining))
		return
	}
	s.canvas.Enqueue(x, y, red, green, blue, alpha)
	s.registry.MarkWrite(ip)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleSince(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseUint(r.URL.Query().Get("timestamp"), 10, 32)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "timestamp must be an unsigned integer")
		return
	}
	raw := r.URL.Query().Get("raw") == "true"
	deltas := s.canvas.Store().DeltaSince(uint32(ts))

	cutoff := s.config().Frontend.API.DeltaCutoff
	forceReload := s.config().Frontend.Web.ForceReload
	if forceReload || (!raw && len(deltas) > cutoff) {
		http.Redirect(w, r, "/canvas/", http.StatusFound)
		return
	}

	out := make([][3]interface{}, len(deltas))
	for i, d := range deltas {
		out[i] = [3]interface{}{d.X, d.Y, fmt.Sprintf("%02x%02x%02x", d.RGB.R, d.RGB.G, d.RGB.B)}
	}
	writeJSON(w, http.StatusOK, out)
}
