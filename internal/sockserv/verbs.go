package sockserv

import (
	"fmt"
	"strconv"

	"github.com/framegrace/pixelwell/internal/canvas"
	"github.com/framegrace/pixelwell/internal/clients"
	"github.com/framegrace/pixelwell/internal/dispatcher"
)

// Prefix is the handler-name prefix this frontend registers under, per
// spec.md §4.5's "<PREFIX>-<VERB>" convention.
const Prefix = "SOCKSERV-"

// IdentifiedReplier is a dispatcher.Replier that also knows the source IP
// it is replying on behalf of. sockserv.Session implements it; other
// frontends sharing this verb table (e.g. an admin console) can too.
type IdentifiedReplier interface {
	dispatcher.Replier
	IP() string
}

// VerbOptions configures the registered verb set.
type VerbOptions struct {
	GodmodeEnabled bool
	ServerName     string
	ServerVersion  string
}

// RegisterVerbs installs the TCP frontend's command table into d. Grounded
// on spec.md §4.5's verb table and original_source/sockets.py's dispatch
// convention ("COMMAND-%s" % command.upper()), generalized to this
// package's "SOCKSERV-<VERB>" prefix.
func RegisterVerbs(d *dispatcher.Dispatcher, cv *canvas.Canvas, registry *clients.Registry, opts VerbOptions) {
	d.Register(Prefix+"PX", func(session dispatcher.Replier, args ...string) bool {
		return handlePX(session, cv, registry, args...)
	})
	d.Register(Prefix+"SIZE", func(session dispatcher.Replier, args ...string) bool {
		if len(args) != 0 {
			return false
		}
		session.Reply(fmt.Sprintf("SIZE %d %d", cv.Width(), cv.Height()))
		return true
	})
	d.Register(Prefix+"PPS", func(session dispatcher.Replier, args ...string) bool {
		if len(args) != 0 {
			return false
		}
		ir, ok := session.(IdentifiedReplier)
		if !ok {
			return false
		}
		pps := registry.Ensure(ir.IP()).PPS()
		session.Reply(fmt.Sprintf("PPS %g", pps))
		return true
	})
	d.Register(Prefix+"HELP", func(session dispatcher.Replier, args ...string) bool {
		if len(args) != 0 {
			return false
		}
		ir, ok := session.(IdentifiedReplier)
		pps := 0.0
		if ok {
			pps = registry.Ensure(ir.IP()).PPS()
		}
		session.Reply(fmt.Sprintf("%s %s", opts.ServerName, opts.ServerVersion))
		session.Reply("Available commands: PX, SIZE, PPS, HELP, STATS, QUIT, EXIT" + godmodeHelpSuffix(opts.GodmodeEnabled))
		session.Reply(fmt.Sprintf("Your current pps: %g", pps))
		return true
	})
	d.Register(Prefix+"STATS", func(session dispatcher.Replier, args ...string) bool {
		if len(args) != 0 {
			return false
		}
		for _, entry := range cv.Stats().Report() {
			session.Reply(fmt.Sprintf("%s\t%d", entry.Color, entry.Count))
		}
		return true
	})
	d.Register(Prefix+"GODMODE", func(session dispatcher.Replier, args ...string) bool {
		if !opts.GodmodeEnabled || len(args) != 1 {
			return false
		}
		ir, ok := session.(IdentifiedReplier)
		if !ok {
			return false
		}
		switch args[0] {
		case "on":
			registry.SetGodmode(ir.IP(), true)
		case "off":
			registry.SetGodmode(ir.IP(), false)
		default:
			return false
		}
		session.Reply("Godmode updated")
		return true
	})
}

func godmodeHelpSuffix(enabled bool) string {
	if enabled {
		return ", GODMODE"
	}
	return ""
}

func handlePX(session dispatcher.Replier, cv *canvas.Canvas, registry *clients.Registry, args ...string) bool {
	switch len(args) {
	case 2:
		x, y, ok := parseCoords(args[0], args[1])
		if !ok {
			return false
		}
		rgb := cv.Store().Read(x, y)
		session.Reply(fmt.Sprintf("PX %d %d %02x%02x%02x", x, y, rgb.R, rgb.G, rgb.B))
		return true
	case 3:
		x, y, ok := parseCoords(args[0], args[1])
		if !ok {
			return false
		}
		r, g, b, a, ok := parseColor(args[2])
		if !ok {
			return false
		}
		cv.Enqueue(x, y, r, g, b, a)
		session.Reply("PX Success")
		return true
	default:
		return false
	}
}

func parseCoords(xs, ys string) (int, int, bool) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}

// parseColor accepts a 6-hex (RRGGBB, implicit A=255) or 8-hex
// (RRGGBBAA) color string.
func parseColor(s string) (r, g, b, a uint8, ok bool) {
	if len(s) != 6 && len(s) != 8 {
		return 0, 0, 0, 0, false
	}
	bytesVal, err := hexToBytes(s)
	if err != nil {
		return 0, 0, 0, 0, false
	}
	a = 255
	if len(bytesVal) == 4 {
		a = bytesVal[3]
	}
	return bytesVal[0], bytesVal[1], bytesVal[2], a, true
}

func hexToBytes(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = uint8(v)
	}
	return out, nil
}
