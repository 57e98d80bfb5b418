// Package main implements the sweep command, which composes a tuning
// configuration, resolves its study, and coordinates hyperparameter
// search trials against persistent storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	flags := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
}

type appFlags struct {
	configPath string
	configDir  string
	listen     string
	overrides  []string
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.configPath, "config", "conf/tune.yaml", "path to the primary tuning document")
	flag.StringVar(&flags.configDir, "config-dir", "", "directory holding group variant files (defaults to the config's directory)")
	flag.StringVar(&flags.listen, "listen", "", "address for the status API (defaults to the configured server port; \"none\" disables it)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags] [key=value overrides...]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	flags.overrides = flag.Args()
	return flags
}
