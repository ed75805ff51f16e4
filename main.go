package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gateleen/resclone/apps"
	"github.com/gateleen/resclone/misc"
)

func main() {
	misc.EnableVirtualTerminal()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := apps.Run(ctx, os.Stderr, os.Args[1:])
	stop()
	os.Exit(apps.ExitCode(err))
}
