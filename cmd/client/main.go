// Package main runs a command line client that plays deathroll games on a server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// main runs the command from the arguments.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	timeFunc := func() int64 {
		return time.Now().Unix()
	}
	cmd := newCommand(os.Stdout, timeFunc)
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
