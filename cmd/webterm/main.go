package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"webterm/internal/config"
	"webterm/internal/engine"
	"webterm/internal/history"
	"webterm/internal/logging"
	"webterm/internal/server"
	"webterm/internal/term"
)

// Version is set via -ldflags during build
var Version = "dev"

func main() {
	var (
		rootFlag    = flag.String("root", "", "Override the permitted root directory")
		addrFlag    = flag.String("addr", "", "Listen address for the web server (default from config)")
		serveFlag   = flag.Bool("serve", false, "Run the web server instead of the interactive shell")
		lineFlag    = flag.String("c", "", "Execute a single command line and exit")
		noHistory   = flag.Bool("no-history", false, "Disable persistent command history")
		versionFlag = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("webterm version %s\n", Version)
		return
	}

	if err := config.EnsureDefaultConfig(); err != nil {
		log.Fatalf("Failed to ensure default config: %v", err)
	}
	cfg, err := config.LoadUserConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if root := strings.TrimSpace(*rootFlag); root != "" {
		cfg.OverrideWorkspaceRoot(root)
	}

	root := cfg.WorkspaceRoot
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		log.Fatalf("Failed to resolve workspace root: %v", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		log.Fatalf("Failed to create workspace root: %v", err)
	}

	logging.Setup(cfg.LogPath, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	defer logging.Close()

	eng, err := engine.New(engine.Options{
		Root:           absRoot,
		Timeout:        cfg.CommandTimeout(),
		MaxOutputBytes: cfg.MaxOutputBytes,
	})
	if err != nil {
		log.Fatalf("Failed to init engine: %v", err)
	}

	var store *history.Store
	if !*noHistory {
		store, err = history.Open(cfg.HistoryPath)
		if err != nil {
			logging.WarnLog("history disabled: %v", err)
		} else {
			defer store.Close()
		}
	}

	// One-shot mode: run the line and exit with a shell-style status.
	if line := strings.TrimSpace(*lineFlag); line != "" {
		res, err := eng.Run(context.Background(), engine.Request{Raw: line})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
			os.Exit(1)
		}
		if res.Stdout != "" {
			fmt.Println(strings.TrimRight(res.Stdout, "\n"))
		}
		if res.Stderr != "" {
			fmt.Fprintln(os.Stderr, strings.TrimRight(res.Stderr, "\n"))
		}
		os.Exit(res.ExitCode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.UserLog("received shutdown signal, stopping")
		cancel()
	}()

	if *serveFlag {
		addr := strings.TrimSpace(*addrFlag)
		if addr == "" {
			addr = cfg.ListenAddr
		}
		srv := server.New(eng, store, addr)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("Web server failed: %v", err)
		}
		return
	}

	session := term.NewSession(eng, store)
	if err := session.Run(ctx); err != nil {
		log.Fatalf("Shell failed: %v", err)
	}
}
