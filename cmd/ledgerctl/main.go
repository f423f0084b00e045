// Package main is a terminal client for the ledger dashboard API.
//
// Usage:
//
//	ledgerctl [-server URL] transactions [-wallet ID] [-token SYMBOL] [-search TEXT] [-offset N] [-limit N] [-sort asc|desc]
//	ledgerctl [-server URL] dashboard
//	ledgerctl [-server URL] import -address ADDR [-network ethereum] [-tokens ETH,USDC] [-wait]
//	ledgerctl [-server URL] reprocess -wallet ID [-import IMPORT_ID]
//	ledgerctl [-server URL] clear
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ledger-dashboard/internal/job"
	"github.com/ledger-dashboard/internal/types"
)

func main() {
	server := flag.String("server", envOr("LEDGER_SERVER", "http://localhost:8080"), "Ledger dashboard base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	client := newAPIClient(*server)
	if err := run(ctx, client, os.Stdout, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ledgerctl [-server URL] <transactions|dashboard|import|reprocess|clear> [flags]")
	flag.PrintDefaults()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, client *apiClient, out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "transactions", "tx":
		return runTransactions(ctx, client, out, args)
	case "dashboard":
		stats, err := client.dashboard(ctx)
		if err != nil {
			return err
		}
		renderDashboard(out, stats)
		return nil
	case "import":
		return runImport(ctx, client, out, args)
	case "reprocess":
		return runReprocess(ctx, client, out, args)
	case "clear":
		n, err := client.clear(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d transactions\n", n)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runReprocess(ctx context.Context, client *apiClient, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("reprocess", flag.ContinueOnError)
	wallet := fs.Int64("wallet", 0, "Wallet id")
	importID := fs.String("import", "", "Only the artifacts of this import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *wallet <= 0 {
		return fmt.Errorf("-wallet is required")
	}

	res, err := client.reprocess(ctx, *wallet, *importID)
	if err != nil {
		return err
	}
	for _, name := range res.Artifacts {
		fmt.Fprintln(out, name)
	}
	if res.Result != nil {
		fmt.Fprintf(out, "%s\n", res.Result.Summary())
	}
	return nil
}

func runTransactions(ctx context.Context, client *apiClient, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	wallet := fs.Int64("wallet", 0, "Restrict to one wallet id")
	token := fs.String("token", "", "Token symbol filter")
	search := fs.String("search", "", "Substring of hash, from or to")
	offset := fs.Int("offset", 0, "Records to skip")
	limit := fs.Int("limit", 20, "Page size")
	sortOrder := fs.String("sort", "desc", "Timestamp order: asc or desc")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{}
	q.Set("offset", strconv.Itoa(*offset))
	q.Set("limit", strconv.Itoa(*limit))
	q.Set("sortOrder", *sortOrder)
	if *wallet > 0 {
		q.Set("walletId", strconv.FormatInt(*wallet, 10))
	}
	if *token != "" {
		q.Set("tokenFilter", *token)
	}
	if *search != "" {
		q.Set("searchQuery", *search)
	}

	res, err := client.transactions(ctx, q)
	if err != nil {
		return err
	}
	renderTransactions(out, res, *offset)
	return nil
}

func runImport(ctx context.Context, client *apiClient, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	address := fs.String("address", "", "Wallet address (0x + 40 hex)")
	network := fs.String("network", string(types.NetworkEthereum), "Network")
	tokens := fs.String("tokens", "ETH", "Comma separated assets")
	startBlock := fs.String("start-block", "", "First block")
	endBlock := fs.String("end-block", "", "Last block or latest")
	apiKey := fs.String("api-key", "", "Explorer API key for this import")
	wait := fs.Bool("wait", false, "Poll until the import finishes")
	interval := fs.Duration("interval", time.Second, "Poll interval with -wait")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := client.startImport(ctx, job.ImportRequest{
		Address:    *address,
		Network:    types.Network(*network),
		StartBlock: *startBlock,
		EndBlock:   *endBlock,
		Tokens:     strings.Split(*tokens, ","),
		APIKey:     *apiKey,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Import %s started\n", id)
	if !*wait {
		return nil
	}

	return pollImport(ctx, client, out, id, *interval)
}

// pollImport prints each progress change until the job is terminal.
func pollImport(ctx context.Context, client *apiClient, out io.Writer, id string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		snap, err := client.progress(ctx, id)
		if err != nil {
			return err
		}
		if snap.Progress != last {
			fmt.Fprintf(out, "%3d%% %s %s\n", snap.Progress, snap.Status, snap.Message)
			last = snap.Progress
		}
		if snap.Status.IsTerminal() {
			if snap.Status == types.ImportStatusError {
				return fmt.Errorf("import failed: %s", snap.Error)
			}
			for _, w := range snap.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
