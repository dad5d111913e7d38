package main

import (
	"context"
	"log"

	"github.com/dascribs/authcore/internal/server"
	"github.com/dascribs/authcore/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
