// Package motd renders the banner shown to a client on new-session
// connection: built-in ASCII art, no art at all, or a custom file,
// followed by connection-info lines, grounded on the original Python
// implementation's render_motd/_load_art.
package motd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

const (
	blue        = "\x1b[34m"
	white       = "\x1b[37m"
	brightWhite = "\x1b[97m"
	yellow      = "\x1b[33m"
	green       = "\x1b[32m"
	red         = "\x1b[31m"
	reset       = "\x1b[0m"
)

// ArtNone and ArtButterfly are the two built-in --motd-art values; any
// other value is treated as a path to a custom banner file.
const (
	ArtNone      = "none"
	ArtButterfly = "butterfly"
)

// version is the banner's self-reported version string. Fixed at build
// time rather than threaded through from a VCS tag, since the banner is
// cosmetic and this repo has no release pipeline yet.
const version = "1.0"

var butterflyArt = buildButterflyArt()

func buildButterflyArt() string {
	b := blue
	w := white
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString("                   " + b + "`         '\n")
	sb.WriteString("   ;,,,             " + b + "       '             ,,,;\n")
	sb.WriteString("   `Y888888bo.       :     :       .od888888Y'\n")
	sb.WriteString("     8888888888b.     :   :     .d8888888888\n")
	sb.WriteString("     88888Y'  `Y8b.   " + b + "`   '   .d8Y'  `Y88888\n")
	sb.WriteString("    j88888  " + w + ".db." + b + "  Yb. '   ' .dY  " + w + ".db." + b + "  88888k\n")
	sb.WriteString("      `888  " + w + "Y88Y" + b + "    `b ( ) d'    " + w + "Y88Y" + b + "  888'\n")
	sb.WriteString("       888b  " + w + "'\"" + b + "        ,',        " + w + "\"'" + b + "  d888\n")
	sb.WriteString("      j888888bd8gf\"'   ':'   `\"?g8bd888888k\n")
	sb.WriteString("        " + w + "'Y'" + b + "   .8'     d' 'b     '8.   " + w + "'Y'" + reset + "\n")
	sb.WriteString("         " + w + "!" + b + "   .8' " + w + "db" + b + "  d'; ;`b  " + w + "db" + b + " '8.   " + w + "!" + b + "\n")
	sb.WriteString("            d88  " + w + "`'" + b + "  8 ; ; 8  " + w + "`'" + b + "  88b        butterfly " + yellow + "v" + version + b + "\n")
	sb.WriteString("           d888b   .g8 ',' 8g.   d888b\n")
	sb.WriteString("          :888888888Y'     'Y888888888:\n")
	sb.WriteString("          '! 8888888'       `8888888 !'\n")
	sb.WriteString("             '8Y  " + w + "`Y         Y'" + b + "  Y8'\n")
	sb.WriteString(w + "              Y                   Y\n")
	sb.WriteString("              !                   !" + reset + "\n")
	return sb.String()
}

// Renderer produces the MOTD banner for new sessions. Use New to
// construct one; the zero value is not usable.
type Renderer struct {
	artMode string // "none", "butterfly", or a file path
	secure  bool

	customArt atomic.Value // string

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
}

// New constructs a Renderer. artMode is one of ArtNone, ArtButterfly, or
// a path to a custom banner file. secure indicates whether the server is
// terminating TLS, which selects the http/https scheme, the coloring, the
// "Mode:" line, and whether the UNSECURE warning is appended.
func New(artMode string, secure bool) *Renderer {
	r := &Renderer{artMode: artMode, secure: secure}
	if artMode != ArtNone && artMode != ArtButterfly {
		r.loadCustomArt()
		r.startWatch()
	}
	return r
}

// Close stops the file watcher, if one was started for a custom banner
// file. Safe to call on a Renderer with no watcher.
func (r *Renderer) Close() {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if r.watcher != nil {
		_ = r.watcher.Close()
		r.watcher = nil
	}
}

func (r *Renderer) loadCustomArt() {
	data, err := os.ReadFile(r.artMode)
	if err != nil {
		slog.Warn("motd: failed to read custom art file, falling back to built-in art", "path", r.artMode, "error", err)
		r.customArt.Store(butterflyArt)
		return
	}
	r.customArt.Store(string(data))
}

func (r *Renderer) startWatch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("motd: could not start banner file watcher, re-reading on every render", "error", err)
		return
	}
	if err := w.Add(r.artMode); err != nil {
		slog.Warn("motd: could not watch banner file, re-reading on every render", "path", r.artMode, "error", err)
		_ = w.Close()
		return
	}

	r.watchMu.Lock()
	r.watcher = w
	r.watchMu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					r.loadCustomArt()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("motd: banner file watcher error", "error", err)
			}
		}
	}()
}

func (r *Renderer) art() string {
	switch r.artMode {
	case ArtNone:
		return ""
	case ArtButterfly:
		return butterflyArt
	default:
		r.watchMu.Lock()
		watching := r.watcher != nil
		r.watchMu.Unlock()
		if !watching {
			r.loadCustomArt()
		}
		if v := r.customArt.Load(); v != nil {
			return v.(string)
		}
		return butterflyArt
	}
}

// Render produces the banner for one new connection: ASCII art (if any)
// followed by "Listening on" / "Connected from" / "Mode" lines, with
// every newline translated to CRLF for raw PTY transmission. With ArtNone
// it returns nil: no banner and no connection-info lines.
func (r *Renderer) Render(host string, port int, remoteAddr string) []byte {
	art := r.art()
	if art == "" && r.artMode == ArtNone {
		return nil
	}

	proto := "http"
	color := red
	mode := "UNSECURE"
	if r.secure {
		proto = "https"
		color = green
		mode = "secure"
	}

	if art != "" {
		art = strings.ReplaceAll(art, "\r\n", "\n")
		art = strings.ReplaceAll(art, "\n", "\r\n")
	}

	var lines []string
	if art != "" {
		lines = append(lines, art)
	}
	lines = append(lines, fmt.Sprintf("  %sListening on:%s  %s%s://%s:%d%s", brightWhite, reset, color, proto, host, port, reset))
	if remoteAddr != "" {
		lines = append(lines, fmt.Sprintf("  %sConnected from:%s %s%s%s", brightWhite, reset, color, remoteAddr, reset))
	}
	lines = append(lines, fmt.Sprintf("  %sMode:%s           %s%s%s", brightWhite, reset, color, mode, reset))
	lines = append(lines, "")

	if !r.secure {
		lines = append(lines, fmt.Sprintf("  %s/!\\ This session is UNSECURE.%s", red, reset))
		lines = append(lines, "")
	}
	lines = append(lines, "")

	return []byte(strings.Join(lines, "\r\n"))
}
