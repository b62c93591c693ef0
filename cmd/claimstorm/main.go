// claimstorm fires concurrent claims at one event and prints how they
// ended.  It mints its own access tokens with the server's JWT secret,
// one holder per token, so it needs no user store.
//
//	claimstorm --url http://localhost:8080 --event 12 --holders 500 --concurrency 64
//
// With --repeat > 1 each holder claims several times, which exercises
// the duplicate-claim path.  On a healthy server the histogram shows at
// most capacity 201s and never more than one 201 per holder.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var opts stormOptions
	flagSet := pflag.NewFlagSet("claimstorm", pflag.ContinueOnError)
	flagSet.StringVar(&opts.BaseURL, "url", "http://localhost:8080", "server base URL")
	flagSet.Uint64Var(&opts.EventID, "event", 0, "event id to claim (required)")
	flagSet.IntVar(&opts.Holders, "holders", 100, "number of distinct holders")
	flagSet.Uint64Var(&opts.FirstHolder, "first-holder", 1, "id of the first holder")
	flagSet.IntVar(&opts.Repeat, "repeat", 1, "claims per holder")
	flagSet.IntVarP(&opts.Concurrency, "concurrency", "c", 32, "requests in flight")
	flagSet.StringVar(&opts.Role, "role", "STUDENT", "role claim put in minted tokens")
	flagSet.StringVar(&opts.Secret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret (default $JWT_SECRET)")
	flagSet.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-request timeout")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "usage: claimstorm --event ID [flags]")
		flagSet.PrintDefaults()
		return nil
	}
	if err := opts.validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	report, err := storm(ctx, opts)
	if err != nil {
		return err
	}
	report.print(os.Stdout, time.Since(start))
	return nil
}
