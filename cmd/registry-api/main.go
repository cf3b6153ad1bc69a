// Command registry-api serves the reconciled property catalog over HTTP and,
// when DATABASE_URL is set, mirrors it into PostgreSQL on SYNC_SCHEDULE.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/R3E-Network/property_registry/internal/app"
	"github.com/R3E-Network/property_registry/internal/config"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

func main() {
	rateLimit := flag.Float64("rate-limit", 20, "Requests per second per client (0 disables)")
	burst := flag.Int("burst", 40, "Rate limiter burst size")
	origins := flag.String("cors-origins", "", "Comma-separated origins allowed by CORS (e.g. https://*.example.com)")
	syncOnStart := flag.Bool("sync-on-start", false, "Run one mirror pass before serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.New("registry-api", logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	log.Println("Starting property registry API")
	log.Printf("  Address: %s", cfg.HTTPAddr)
	if cfg.RegistryAddress != "" {
		log.Printf("  Registry: %s", cfg.RegistryAddress)
	} else {
		log.Println("  Registry: not configured, serving the static catalog")
	}
	log.Printf("  Mirror: %v", cfg.DatabaseURL != "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.NewApplication(ctx, cfg, lg, app.Options{
		RateLimit:      *rateLimit,
		Burst:          *burst,
		AllowedOrigins: splitList(*origins),
	})
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	if *syncOnStart {
		if rep, err := application.SyncOnce(ctx); err != nil {
			log.Printf("Initial sync failed: %v", err)
		} else {
			log.Printf("Initial sync mirrored %d properties from %s", rep.Synced, rep.Source)
		}
	}

	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	failed := false
	select {
	case <-sigCh:
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			failed = true
		}
	}

	log.Println("Shutting down...")
	cancel()
	if err := application.Shutdown(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Stopped")
	if failed {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
