// Package main starts the server after configuring it from supplied or standard arguments
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// main configures and runs the server.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logFlags := log.Ldate | log.Ltime | log.LUTC | log.Lshortfile | log.Lmsgprefix
	log := log.New(os.Stdout, "", logFlags)
	m := newMainFlags(os.Args, os.LookupEnv)
	c, err := m.newComponents(ctx, log)
	if err != nil {
		log.Fatalf("creating server: %v", err)
	}
	if err := c.run(ctx); err != nil {
		log.Fatalf("running server: %v", err)
	}
	log.Println("server run stopped successfully")
}

// run runs the components until the context is done or one of them fails.
func (c components) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return c.server.Stop(context.Background())
	})
	g.Go(func() error {
		return c.registry.Run(ctx)
	})
	g.Go(func() error {
		var wg sync.WaitGroup
		c.recorder.Run(ctx, &wg)
		c.snapshots.Run(ctx, &wg)
		wg.Wait()
		return nil
	})
	if c.busRunner != nil {
		g.Go(func() error {
			return c.busRunner.Run(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("running components: %w", err)
	}
	return nil
}
