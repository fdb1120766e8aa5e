package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/rawbook/core/cmd"
	"github.com/m3rciful/rawbook/core/config"
	"github.com/m3rciful/rawbook/internal/app"
)

func main() {
	root := cmd.NewRootCommand(cmd.Options{
		NewApp: func(cfg *config.Config, db *sqlx.DB) (cmd.Runner, error) {
			return app.New(cfg, db)
		},
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "rawbook:", err)
		os.Exit(1)
	}
}
