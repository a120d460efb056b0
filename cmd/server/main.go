// Command server runs the chat relay: a TCP listener and an optional HTTP
// listener (WebSocket, health, users, metrics) sharing one session hub.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/store"
	"github.com/Tyrowin/chatrelay/internal/transport"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "chatrelay: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	dryRun     bool
}

// loadConfig builds the configuration from defaults, then the YAML file
// named by --config, then the environment, then explicitly set flags.
func loadConfig(args []string, stderr io.Writer) (*server.Config, options, error) {
	var opts options
	fl := server.NewConfig()

	fs := flag.NewFlagSet("chatrelay", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Validate configuration and exit")

	fs.StringVarP(&fl.Port, "port", "p", fl.Port, "TCP listen address")
	fs.StringVar(&fl.HTTPAddr, "http-addr", fl.HTTPAddr, "HTTP listen address (empty disables)")
	fs.StringSliceVar(&fl.AllowedOrigins, "allowed-origins", fl.AllowedOrigins, "Allowed WebSocket origins")
	fs.Int64Var(&fl.MaxMessageSize, "max-message-size", fl.MaxMessageSize, "Maximum frame size in bytes")
	framing := fs.String("framing", string(fl.Framing), "TCP framing: read or line")
	fs.DurationVar(&fl.IdleTimeout, "idle-timeout", fl.IdleTimeout, "Evict sessions idle longer than this")
	fs.DurationVar(&fl.ReapInterval, "reap-interval", fl.ReapInterval, "Idle sweep interval")
	fs.DurationVar(&fl.HandshakeTimeout, "handshake-timeout", fl.HandshakeTimeout, "Deadline for the handshake frame")
	policy := fs.String("duplicate-policy", string(fl.DuplicatePolicy), "Duplicate id policy: replace, reject or evict")
	fs.StringVar(&fl.Log.Level, "log-level", fl.Log.Level, "Log level")
	fs.StringVar(&fl.Log.Format, "log-format", fl.Log.Format, "Log format: text or json")
	fs.StringVar(&fl.PresenceDB, "presence-db", fl.PresenceDB, "SQLite presence database (empty disables)")

	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}

	var cfg *server.Config
	if opts.configPath != "" {
		fileCfg, err := server.LoadConfigFile(opts.configPath)
		if err != nil {
			return nil, opts, err
		}
		server.ApplyEnv(fileCfg)
		cfg = fileCfg
	} else {
		cfg = server.NewConfigFromEnv()
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = fl.Port
		case "http-addr":
			cfg.HTTPAddr = fl.HTTPAddr
		case "allowed-origins":
			cfg.AllowedOrigins = fl.AllowedOrigins
		case "max-message-size":
			cfg.MaxMessageSize = fl.MaxMessageSize
		case "framing":
			cfg.Framing = transport.Framing(*framing)
		case "idle-timeout":
			cfg.IdleTimeout = fl.IdleTimeout
		case "reap-interval":
			cfg.ReapInterval = fl.ReapInterval
		case "handshake-timeout":
			cfg.HandshakeTimeout = fl.HandshakeTimeout
		case "duplicate-policy":
			cfg.DuplicatePolicy = server.DuplicatePolicy(*policy)
		case "log-level":
			cfg.Log.Level = fl.Log.Level
		case "log-format":
			cfg.Log.Format = fl.Log.Format
		case "presence-db":
			cfg.PresenceDB = fl.PresenceDB
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, opts, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, opts, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, opts, err := loadConfig(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return err
	}
	if opts.dryRun {
		log.Info("Configuration is valid")
		return nil
	}

	hubOpts := []server.Option{server.WithLogger(log)}
	if cfg.PresenceDB != "" {
		st, err := store.Open(cfg.PresenceDB)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.MarkAllOffline(ctx, string(server.LeaveShutdown), time.Now())
		if err != nil {
			return err
		}
		log.WithField("stale", n).Info("Presence database opened")
		hubOpts = append(hubOpts, server.WithPresence(st))
	}

	hub := server.NewHub(*cfg, hubOpts...)

	ln, err := server.ListenTCP(*cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return server.ServeTCP(gctx, ln, hub) })

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = server.CreateServer(cfg.HTTPAddr, server.SetupRoutes(hub))
		g.Go(func() error { return server.StartServer(httpServer, log) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		var errs []error
		if httpServer != nil {
			if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
				errs = append(errs, err)
			}
		}
		if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
