// Package main implements nsould — a presence and messaging protocol
// server. Clients hold a persistent line-oriented TCP (or bridged
// websocket) connection, authenticate through a two-phase handshake,
// publish liveness state, subscribe to other users' transitions and
// exchange directed messages. All session state lives in a single
// event loop; accounts come from a pluggable store (PostgreSQL, SQLite
// or in-memory for development).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/netsoul/nsould/account"
	"github.com/netsoul/nsould/config"
	"github.com/netsoul/nsould/ns"
	"github.com/netsoul/nsould/wsgateway"
)

// ---------------------------------------------------------------------------
// CLI flags
// ---------------------------------------------------------------------------

var (
	flagConfig  = flag.String("config", "", "path to the YAML configuration file")
	flagAddr    = flag.String("addr", "", "listen address (overrides config)")
	flagVerbose = flag.Bool("verbose", false, "enable debug logging")
	flagDevUser = flag.String("dev-user", "", "register 'login:password' in the in-memory store (repeatable via commas; memory driver only)")
	flagShowVer = flag.Bool("version", false, "print version and exit")
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "nsould — presence and messaging protocol server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if *flagShowVer {
		fmt.Printf("%s %s (%s)\n", ns.ServerName, ns.Version, ns.BuildDate)
		return
	}

	cfg := config.Default()
	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil {
			log.Fatalf("nsould: %v", err)
		}
		cfg = loaded
	}
	if *flagAddr != "" {
		cfg.Listen = *flagAddr
	}

	level := slog.LevelInfo
	if *flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, logger); err != nil {
		log.Fatalf("nsould: %v", err)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	directory, closeDir, err := openDirectory(cfg)
	if err != nil {
		return err
	}
	defer closeDir()

	table := ns.DefaultCommandTable()
	if len(cfg.Commands) > 0 {
		table = ns.CommandTable(cfg.Commands)
	}
	registry, err := ns.BuildRegistry(table, ns.RegistryOptions{
		DisabledAuthMechanisms: cfg.DisabledAuthMechanisms,
	})
	if err != nil {
		return err
	}

	metrics := ns.NewMetrics()
	env := &ns.Env{
		Sessions:  ns.NewSessionSet(),
		Followers: ns.NewFollowerRegistry(),
		Directory: directory,
		Sink:      metrics,
		Limits:    ns.Limits{MaxSessionsPerLogin: cfg.MaxSessionsPerLogin},
		Log:       logger,
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	reactor := ns.NewReactor(listener, registry, env, ns.ReactorOptions{
		TTL:            time.Duration(cfg.TTLSeconds) * time.Second,
		PollTimeout:    time.Duration(cfg.PollTimeoutMillis) * time.Millisecond,
		MaxConnections: cfg.MaxConnections,
	})

	// Metrics endpoint, same sidecar pattern as the websocket gateway.
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			log.Printf("nsould: metrics on http://%s/metrics", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				log.Printf("nsould: metrics server: %v", err)
			}
		}()
	}

	if cfg.WebsocketListen != "" {
		gw := wsgateway.New(reactor, logger)
		go func() {
			log.Printf("nsould: websocket gateway on ws://%s/", cfg.WebsocketListen)
			if err := http.ListenAndServe(cfg.WebsocketListen, gw); err != nil {
				log.Printf("nsould: websocket gateway: %v", err)
			}
		}()
	}

	var advertiser *ns.Advertiser
	if cfg.MDNS.Enabled {
		port := listenerPort(listener)
		advertiser, err = ns.Advertise(cfg.MDNS.Instance, port, logger)
		if err != nil {
			log.Printf("nsould: mdns disabled: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("nsould: received %v, shutting down", sig)
		if advertiser != nil {
			advertiser.Shutdown()
		}
		reactor.Stop()
	}()

	log.Printf("nsould %s listening on %s (ttl=%ds maxconn=%d sessions_per_login=%d db=%s)",
		ns.Version, cfg.Listen, cfg.TTLSeconds, cfg.MaxConnections,
		cfg.MaxSessionsPerLogin, cfg.Database.Driver)

	reactor.Run()
	log.Printf("nsould: stopped")
	return nil
}

func openDirectory(cfg *config.Config) (ns.Directory, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Database.Driver {
	case "postgres":
		pg, err := account.OpenPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "sqlite":
		db, err := account.OpenSQLite(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	default:
		mem := ns.NewMemoryDirectory()
		for _, pair := range strings.Split(*flagDevUser, ",") {
			login, password, ok := strings.Cut(pair, ":")
			if !ok || login == "" {
				continue
			}
			mem.AddAccount(login, password, "int")
			log.Printf("nsould: registered dev account %q", login)
		}
		return mem, func() {}, nil
	}
}

func listenerPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
