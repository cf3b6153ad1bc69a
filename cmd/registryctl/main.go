// Command registryctl deploys and maintains the PropertyRegistry contract.
//
// Usage:
//
//	registryctl deploy     [-artifact path]
//	registryctl push-all   [-catalog path]
//	registryctl upsert-one -slug s [-mode upsert|replace|append] [-index n] [-catalog path]
//	registryctl read-all   [-catalog path] [-json]
//	registryctl invest     -slug s -quantity n [-value wei]
//	registryctl sync
//	registryctl migrate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/property_registry/internal/config"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error
}

var commands = []command{
	{"deploy", "Deploy the registry from a hardhat artifact", runDeploy},
	{"push-all", "Replace the on-chain list with the local catalog", runPushAll},
	{"upsert-one", "Write one catalog property to the registry", runUpsertOne},
	{"read-all", "Print the registry contents", runReadAll},
	{"invest", "Buy tokens of a listed property", runInvest},
	{"sync", "Mirror the reconciled catalog into PostgreSQL", runSync},
	{"migrate", "Apply the mirror database migrations", runMigrate},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New("registryctl", logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, cfg, lg, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		stop()
		log.Fatalf("%s: %v", cmd.name, err)
	}
}

func printUsage() {
	fmt.Println("registryctl - PropertyRegistry maintenance tool")
	fmt.Println()
	fmt.Println("Usage: registryctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, c := range commands {
		fmt.Printf("  %-11s %s\n", c.name, c.summary)
	}
	fmt.Println()
	fmt.Println("Configuration is read from the environment, .env.local and .env.")
	fmt.Println("Use 'registryctl <command> -h' for command options.")
}

func init() {
	log.SetFlags(0)
	log.SetPrefix("registryctl: ")
}

// newFlags returns a flag set that reports parse errors instead of exiting.
func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}
