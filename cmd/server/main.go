// The server command is the main entrypoint for running queuegate. It takes
// care of initializing everything and runs the gateway, queue, and session
// service for a fully functional queueing proxy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/queuegate/queuegate/internal"
	"github.com/queuegate/queuegate/internal/core"
)

var configFlag = flag.String("config", "./", "Path to the directory containing the server config file")

func main() {
	flag.Parse()

	config := core.LoadConfig(*configFlag)
	fmt.Println("using configuration file:", *configFlag)

	// Change to the same directory as the config file so that any relative
	// paths in the config file will resolve.
	if err := os.Chdir(filepath.Dir(*configFlag)); err != nil {
		fmt.Println("error changing to config directory:", err)
		os.Exit(1)
	}

	// Bind the Controller to one top-level server context so that we can shut down cleanly.
	ctx, cancel := context.WithCancel(context.Background())

	// Register a SIGTERM handler so that Ctrl-C will shut the proxy down gracefully.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("shutting down...")
		cancel()
		<-c
		fmt.Println("hard exiting (killed)")
		os.Exit(1)
	}()

	controller := &internal.Controller{Config: config}
	controller.Start(ctx)
	fmt.Println("shut down")
}
