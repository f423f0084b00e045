// Package main is the fetch executable launched once per import. It reads a fetch config,
// pages the explorer into CSV artifacts and reports progress on stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledger-dashboard/internal/adapter"
)

func main() {
	configPath := flag.String("config", "", "Path to the fetch config written by the import runner")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "missing -config")
		os.Exit(2)
	}

	cfg, err := adapter.ReadFetchConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := adapter.NewEtherscanClient(cfg.APIKey, cfg.BaseURL, cfg.RequestsPerSecond)
	summary, err := adapter.NewFetcher(client, os.Stdout).Run(ctx, cfg)
	if err != nil {
		// stderr is kept verbatim as the job's error message.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for symbol, failure := range summary.Failures {
		fmt.Fprintf(os.Stderr, "%s: %v\n", symbol, failure)
	}
}
