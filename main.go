package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/evalsync/cmd"
	"github.com/tphakala/evalsync/internal/app"
	"github.com/tphakala/evalsync/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	env := &app.Env{}
	err := cmd.RootCommand(env).ExecuteContext(ctx)

	telemetry.Flush(telemetry.DefaultFlushTimeout)
	_ = env.Close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
