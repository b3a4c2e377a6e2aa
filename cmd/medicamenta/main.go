package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/gmsas95/medicamenta/internal/app"
	"github.com/gmsas95/medicamenta/internal/cli"
	"github.com/gmsas95/medicamenta/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

type subcommand func(context.Context, cli.Env, []string) error

var offline = map[string]subcommand{
	"forecast": cli.HandleForecastCommand,
	"restock":  cli.HandleRestockCommand,
	"export":   cli.HandleExportCommand,
	"import":   cli.HandleImportCommand,
}

func main() {
	flag.Usage = func() { cli.PrintHelp(os.Stderr) }
	flag.Parse()

	command, args := "serve", []string(nil)
	if flag.NArg() > 0 {
		command, args = flag.Arg(0), flag.Args()[1:]
	}

	switch command {
	case "version", "--version", "-v":
		fmt.Printf("medicamenta version %s\n", version)
		return
	case "help", "--help", "-h":
		cli.PrintHelp(os.Stdout)
		return
	}

	run, isOffline := offline[command]
	if command != "serve" && !isOffline {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		cli.PrintHelp(os.Stderr)
		os.Exit(2)
	}

	if err := config.LoadEnvFiles(); err != nil {
		log.Printf("Failed to load .env files: %v", err)
	}
	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if isOffline {
		// keep stdout clean for the command output
		cfg.Log.Level = "warn"
		cfg.Tracing.Enabled = false
	}

	logger, level, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, level, version)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	if isOffline {
		env := cli.Env{
			Handler: application.Handler,
			Repo:    application.Store,
			Out:     os.Stdout,
			Table:   term.IsTerminal(int(os.Stdout.Fd())),
		}
		if err := run(ctx, env, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			application.Close()
			os.Exit(1)
		}
		return
	}

	logger.Info("Starting medicamenta",
		zap.String("version", version),
		zap.String("config", cfg.File))

	if err := application.RunServer(ctx, *configPath, *dataDir); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		application.Close()
		os.Exit(1)
	}
}
