/*
This is an example of application that will use the
engine package to render the testbed scene
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/deferred/engine"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		core.LogError("%+v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return err
	}

	tb, err := testbed.NewTestGame(cfg)
	if err != nil {
		return err
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// The loop notices the quit event on its next iteration and returns, so
	// teardown always happens on the main thread.
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		core.LogInfo("received %s, quitting", sig)
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	}()

	if err := e.Initialize(); err != nil {
		if shutdownErr := e.Shutdown(); shutdownErr != nil {
			core.LogError("shutdown after failed initialization: %s", shutdownErr)
		}
		return err
	}

	runErr := e.Run()
	if err := e.Shutdown(); err != nil && runErr == nil {
		return err
	}
	return runErr
}
