/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/armada/engine"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/testbed"
)

func main() {
	configPath := flag.String("config", "armada.toml", "engine configuration file")
	assetDir := flag.String("assets", "assets", "asset directory")
	flag.Parse()

	tb := testbed.NewTestGame(*configPath, *assetDir)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("engine boot failed: %s", err)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("engine initialization failed: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// the loop owns the window and the GPU, so signals only ask it to stop
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %s", runErr)
	}
}
