package main

import (
	"context"
	"log"

	"github.com/talkreg/regbot/internal/app"
	"github.com/talkreg/regbot/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	a.Run(ctx)
}
