package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/assets"
	c "github.com/life-stream-dev/life-stream-go-tabletop/internal/config"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/connection"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/database"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/engine"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/event"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/server"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/session"
)

const Version = "0.1.0"

const usage = `Tabletop session server.

Usage:
    tabletop-server [--config=<path>] [--port=<port>] [--debug]
    tabletop-server -h | --help
    tabletop-server --version

Options:
    -h --help        Show this screen.
    --version        Show version.
    --config=<path>  Config file, .json or .toml [default: config.json].
    --port=<port>    Override server.port.
    --debug          Enable debug logging.
`

func loadConfig(opts docopt.Opts) (c.Config, error) {
	path, err := opts.String("--config")
	if err != nil {
		path = c.DefaultPath
	}
	config, err := c.ReadConfig(path)
	if err != nil {
		return config, err
	}
	if opts["--port"] != nil {
		port, err := opts.Int("--port")
		if err != nil {
			return config, fmt.Errorf("invalid --port: %w", err)
		}
		config.Server.Port = port
	}
	if debug, _ := opts.Bool("--debug"); debug {
		config.DebugMode = true
	}
	return config, config.Validate()
}

func openAssetStore(config c.Config, cleaner *event.Cleaner) (assets.Store, error) {
	switch config.Assets.Backend {
	case c.BackendGridFS:
		client, operationTimeout, err := database.ConnectDatabase(context.Background(), config)
		if err != nil {
			return nil, err
		}
		cleaner.Add(database.NewDBCloseCallback(client, operationTimeout))
		return database.NewGridFSStore(client.Database(config.Database.Database), config.Assets.Bucket, operationTimeout)
	default:
		return assets.NewDiskStore(config.Assets.UploadDir)
	}
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	config, err := loadConfig(opts)
	if err != nil {
		if errors.Is(err, c.ErrConfigCreated) {
			fmt.Println(err.Error())
			return
		}
		logger.FatalF("Error occured while reading config %v", err)
		os.Exit(1)
	}

	loggerCallback := logger.Init(config)
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	store, err := openAssetStore(config, cleaner)
	if err != nil {
		logger.FatalF("Error occured while initializing asset store, details: %v", err)
		cleaner.Shutdown()
		<-cleaner.Done()
		os.Exit(1)
	}

	sessions, err := session.NewStore(config.Session.MaxSessions)
	if err != nil {
		logger.FatalF("Error occured while initializing session store, details: %v", err)
		cleaner.Shutdown()
		<-cleaner.Done()
		os.Exit(1)
	}

	manager := connection.GetConnectionManager()
	eng := engine.New(sessions, manager, engine.Options{
		AllowUnjoinedMutations: config.Engine.AllowUnjoinedMutations,
	})
	srv := server.NewServer(config, eng, manager, store)
	cleaner.Add(srv)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.FatalF("Tabletop Server Start error: %v", err)
			cleaner.Shutdown()
		}
	}()

	<-cleaner.Done()
}
