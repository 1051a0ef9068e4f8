package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jwulff/echo/internal/cli"
	"github.com/jwulff/echo/internal/errs"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &cli.Dependencies{Version: version}
	if err := cli.NewRootCmd(deps).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errs.UserMessage(err))
		_ = deps.Close()
		stop()
		os.Exit(1)
	}
}
