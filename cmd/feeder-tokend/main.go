// Command feeder-tokend mints and revokes feeder bearer tokens, the
// credential feeders present to POST /feeder/aircraft. Grounded on the
// teacher's single-purpose flag-driven cmd/ tools (cmd/verify-flightplans,
// cmd/import-nasr): connect, do one thing, print a result, exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"aircraftdata/internal/auth"
	"aircraftdata/internal/store"
	"aircraftdata/pkg/config"
)

var configPath = flag.String("config", "configs/config.json", "Path to configuration file")

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Connect(store.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Database:     cfg.Database.Database,
		Username:     cfg.Database.Username,
		Password:     cfg.Database.Password,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	switch args[0] {
	case "mint":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: feeder-tokend mint <label> [source-priority]")
			os.Exit(1)
		}
		label := args[1]
		priority := adsbSourceFeederPriority
		if len(args) >= 3 {
			if _, err := fmt.Sscanf(args[2], "%d", &priority); err != nil {
				fmt.Fprintf(os.Stderr, "invalid source priority %q\n", args[2])
				os.Exit(1)
			}
		}
		mint(ctx, st, label, priority)

	case "revoke":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: feeder-tokend revoke <token>")
			os.Exit(1)
		}
		revoke(ctx, st, args[1])

	default:
		usage()
		os.Exit(1)
	}
}

// adsbSourceFeederPriority mirrors adsb.SourceFeeder.Priority(); feeder
// tokens default to it unless a caller names a different priority.
const adsbSourceFeederPriority = 10

func mint(ctx context.Context, st *store.Store, label string, priority int) {
	token, hash, err := auth.NewFeederToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}

	if err := st.CreateFeederToken(ctx, store.FeederToken{
		TokenHash:      hash,
		Label:          label,
		SourcePriority: priority,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "store token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("minted feeder token for %q (source_priority=%d)\n", label, priority)
	fmt.Printf("token (shown once, store it securely): %s\n", token)
}

func revoke(ctx context.Context, st *store.Store, token string) {
	hash := auth.HashFeederToken(token)
	if err := st.RevokeFeederToken(ctx, hash); err != nil {
		fmt.Fprintf(os.Stderr, "revoke token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("token revoked")
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: feeder-tokend [-config path] mint <label> [source-priority] | revoke <token>")
}
