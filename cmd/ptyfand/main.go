package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ptyfan/ptyfan/configs"
	"github.com/ptyfan/ptyfan/internal/config"
	"github.com/ptyfan/ptyfan/internal/motd"
	"github.com/ptyfan/ptyfan/internal/server"
	"github.com/ptyfan/ptyfan/internal/sessionmgr"
	"github.com/ptyfan/ptyfan/internal/sessionstore"
	"github.com/ptyfan/ptyfan/internal/wsapi"
)

var version = "0.1.0"

// cliFlags holds the raw values bound to root's flag set. Only flags the
// user actually set (per pflag's Changed) are layered onto the config
// already resolved from defaults, file, and environment.
type cliFlags struct {
	configPath string
	host       string
	port       int
	shell      string
	cmd        string
	historySz  int
	unsecure   bool
	logEnabled bool
	logDir     string
	motdArt    string
	dbPath     string
	noPersist  bool
}

func main() {
	var flags cliFlags

	root := &cobra.Command{
		Use:     "ptyfand",
		Short:   "ptyfand — a web terminal multiplexer",
		Long:    "Serves PTY sessions over WebSocket, broadcasting to every attached client with rolling history replay and optional script(1)-compatible session logging.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Defaults()
			if flags.configPath != "" {
				cfg.ConfigPath = flags.configPath
			}
			if err := cfg.LoadFile(cfg.ConfigPath); err != nil {
				return err
			}
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			applyFlagOverrides(&cfg, cmd.Flags(), &flags)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cfg)
		},
	}

	root.Flags().StringVar(&flags.configPath, "config", "", "path to config.yaml (default ~/.config/ptyfan/config.yaml)")
	root.Flags().StringVar(&flags.host, "host", "", "address to listen on")
	root.Flags().IntVar(&flags.port, "port", 0, "port to listen on")
	root.Flags().StringVar(&flags.shell, "shell", "", "login shell spawned when no command is given")
	root.Flags().StringVar(&flags.cmd, "cmd", "", "command spawned in place of the login shell")
	root.Flags().IntVar(&flags.historySz, "history-size", 0, "bytes of scrollback replayed to newly attached clients")
	root.Flags().BoolVar(&flags.unsecure, "unsecure", false, "allow plaintext connections without warning")
	root.Flags().BoolVar(&flags.logEnabled, "log", false, "record every session to a script(1)-compatible log")
	root.Flags().StringVar(&flags.logDir, "log-dir", "", "directory session logs are written to")
	root.Flags().StringVar(&flags.motdArt, "motd-art", "", "banner shown on new sessions: none, butterfly, or a path to a custom file")
	root.Flags().StringVar(&flags.dbPath, "db-path", "", "path to the session lifecycle database")
	root.Flags().BoolVar(&flags.noPersist, "no-persist", false, "do not record session lifecycle to disk")

	root.AddCommand(generateConfigCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlagOverrides layers explicitly-set CLI flags over cfg, which has
// already absorbed defaults, file, and environment values.
func applyFlagOverrides(cfg *config.Config, flagSet *pflag.FlagSet, flags *cliFlags) {
	if flagSet.Changed("host") {
		cfg.Host = flags.host
	}
	if flagSet.Changed("port") {
		cfg.Port = flags.port
	}
	if flagSet.Changed("shell") {
		cfg.Shell = flags.shell
	}
	if flagSet.Changed("cmd") {
		cfg.Cmd = flags.cmd
	}
	if flagSet.Changed("history-size") {
		cfg.HistorySize = flags.historySz
	}
	if flagSet.Changed("unsecure") {
		cfg.Unsecure = flags.unsecure
	}
	if flagSet.Changed("log") {
		cfg.LogEnabled = flags.logEnabled
	}
	if flagSet.Changed("log-dir") {
		cfg.LogDir = flags.logDir
	}
	if flagSet.Changed("motd-art") {
		cfg.MotdArt = flags.motdArt
	}
	if flagSet.Changed("db-path") {
		cfg.DBPath = flags.dbPath
	}
	if flagSet.Changed("no-persist") {
		cfg.NoPersist = flags.noPersist
	}
}

func generateConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Write the commented default config.yaml template to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := out
			if dest == "" {
				dest = config.Defaults().ConfigPath
			}
			template, err := fs.ReadFile(configs.DefaultConfig, "default.yaml")
			if err != nil {
				return fmt.Errorf("reading embedded default config: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("creating %q: %w", filepath.Dir(dest), err)
			}
			if err := os.WriteFile(dest, template, 0o644); err != nil {
				return fmt.Errorf("writing %q: %w", dest, err)
			}
			fmt.Println("wrote", dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination path (default ~/.config/ptyfan/config.yaml)")
	return cmd
}

func run(cfg config.Config) error {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *sessionstore.Store
	if !cfg.NoPersist {
		s, err := sessionstore.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening session store: %w", err)
		}
		store = s
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("closing session store", "error", err)
			}
		}()
	}

	manager := sessionmgr.New(store)
	renderer := motd.New(cfg.MotdArt, !cfg.Unsecure)
	defer renderer.Close()

	handler := wsapi.New(cfg, manager, store, renderer)
	srv, err := server.New(cfg, handler.Mux())
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	printStartupBanner(cfg)

	serveErr := srv.Start(ctx)

	slog.Info("shutting down, waiting for sessions to close")
	manager.Shutdown(context.Background())

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

// setupLogging installs the default slog handler: text to a terminal,
// JSON when stdout is redirected (e.g. under systemd or a log collector).
func setupLogging() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, opts)))
	}
}

func printStartupBanner(cfg config.Config) {
	fmt.Printf("\nptyfand v%s\n", version)
	fmt.Printf("  listening on: http://%s:%d\n", cfg.Host, cfg.Port)
	fmt.Printf("  shell:        %s\n", resolveShellLabel(cfg))
	fmt.Printf("  history:      %d bytes\n", cfg.HistorySize)
	if cfg.LogEnabled {
		fmt.Printf("  session logs: %s\n", cfg.LogDir)
	}
	if cfg.NoPersist {
		fmt.Println("  persistence:  disabled")
	} else {
		fmt.Printf("  db:           %s\n", cfg.DBPath)
	}
	if cfg.Unsecure {
		fmt.Println("  warning:      running without TLS; do not expose this to an untrusted network")
	}
	fmt.Println("\nCtrl+C to stop")
}

func resolveShellLabel(cfg config.Config) string {
	if cfg.Cmd != "" {
		return cfg.Cmd
	}
	return cfg.Shell
}
