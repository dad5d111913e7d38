package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dascribs/authcore/internal/authctl"
	"github.com/dascribs/authcore/internal/server"
	"github.com/dascribs/authcore/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	// Messages still go through the configured dispatcher; keep the console quiet.
	cfg.LogLevel = "warn"

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	svc := app.Services()
	cli := authctl.New(authctl.Backend{Auth: svc.Auth, Sweeper: app.Sweeper(), Roles: svc.Roles}, os.Stdout)
	err = cli.Run(ctx, os.Args[1:])
	_ = app.Close()

	if errors.Is(err, authctl.ErrUsage) {
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}

}
