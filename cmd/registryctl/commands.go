package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/R3E-Network/property_registry/internal/app"
	"github.com/R3E-Network/property_registry/internal/catalog"
	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/cli"
	"github.com/R3E-Network/property_registry/internal/config"
	"github.com/R3E-Network/property_registry/internal/domain/property"
	"github.com/R3E-Network/property_registry/internal/registry"
	"github.com/R3E-Network/property_registry/internal/storage/postgres"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

var out = cli.NewPrinter()

// openWallet validates the signing key locally before dialing, so a
// missing or malformed key never causes network traffic.
func openWallet(ctx context.Context, cfg *config.Config) (*chain.Wallet, error) {
	if err := cfg.RequirePrivateKey(); err != nil {
		return nil, err
	}
	if _, err := chain.ParsePrivateKey(cfg.PrivateKey); err != nil {
		return nil, err
	}
	chainCfg, err := cfg.ChainConfig()
	if err != nil {
		return nil, err
	}
	client, err := chain.Dial(ctx, chainCfg)
	if err != nil {
		return nil, err
	}
	w, err := chain.NewWallet(ctx, client, cfg.PrivateKey)
	if err != nil {
		client.Close()
		return nil, err
	}
	return w, nil
}

// writerFor returns a registry client able to send transactions.
func writerFor(ctx context.Context, cfg *config.Config, log *logger.Logger) (*registry.Client, func(), error) {
	if err := cfg.RequireRegistry(); err != nil {
		return nil, nil, err
	}
	w, err := openWallet(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := registry.New(cfg.Registry(), w, w, log)
	if err != nil {
		w.Close()
		return nil, nil, err
	}
	out.Info("network %s, signer %s", w.Network().Name, w.Address().Hex())
	return c, w.Close, nil
}

// readerFor returns a read-only registry client.
func readerFor(ctx context.Context, cfg *config.Config, log *logger.Logger) (*registry.Client, func(), error) {
	if err := cfg.RequireRegistry(); err != nil {
		return nil, nil, err
	}
	chainCfg, err := cfg.ChainConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := chain.Dial(ctx, chainCfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := registry.New(cfg.Registry(), client, nil, log)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return c, client.Close, nil
}

func loadCatalog(path string) ([]property.Property, error) {
	items, err := catalog.Load(path)
	if err != nil {
		return nil, chain.ConfigError("catalog: %v", err)
	}
	return items, nil
}

func runDeploy(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := newFlags("deploy")
	artifactPath := fs.String("artifact", cfg.ArtifactPath, "Hardhat artifact of the PropertyRegistry contract")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := cfg.RequirePrivateKey(); err != nil {
		return err
	}
	art, err := registry.LoadArtifact(*artifactPath)
	if err != nil {
		return err
	}
	w, err := openWallet(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	network := w.Network()
	balance, err := w.Balance(ctx)
	if err != nil {
		return err
	}
	out.Info("deploying %s to %s from %s (balance %s wei)", art.ContractName, network.Name, w.Address().Hex(), balance)
	if network.Public && balance.Sign() == 0 {
		return chain.ConfigError("deployer %s has no funds on %s", w.Address().Hex(), network.Name)
	}

	spin := out.NewSpinner("Waiting for deployment receipt")
	spin.Start()
	res, err := registry.Deploy(ctx, w, art)
	if err != nil {
		spin.Error("deployment failed")
		return err
	}
	spin.Success("%s deployed at %s in block %d", art.ContractName, res.ContractAddress.Hex(), res.BlockNumber)

	fmt.Println()
	fmt.Println("Add this to .env.local:")
	fmt.Printf("  PROPERTY_REGISTRY_ADDRESS=%s\n", res.ContractAddress.Hex())
	return nil
}

func runPushAll(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := newFlags("push-all")
	catalogPath := fs.String("catalog", cfg.CatalogFile, "Catalog YAML file (default: embedded catalog)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	items, err := loadCatalog(*catalogPath)
	if err != nil {
		return err
	}
	records, err := registry.ToRecords(items)
	if err != nil {
		return err
	}
	client, closeFn, err := writerFor(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	spin := out.NewSpinner(fmt.Sprintf("Pushing %d properties", len(records)))
	spin.Start()
	res, err := client.SetProperties(ctx, records)
	if err != nil {
		spin.Error("push failed")
		return err
	}
	spin.Success("pushed %d properties in tx %s (block %d)", len(records), res.TxHash.Hex(), res.BlockNumber)
	return nil
}

func runUpsertOne(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := newFlags("upsert-one")
	slug := fs.String("slug", "", "Slug of the catalog property to write (required)")
	mode := fs.String("mode", "upsert", "upsert (replace by slug or append), replace, or append")
	index := fs.Int64("index", -1, "Registry index for -mode replace")
	catalogPath := fs.String("catalog", cfg.CatalogFile, "Catalog YAML file (default: embedded catalog)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*slug) == "" {
		return chain.InvalidError("upsert-one", "-slug is required")
	}
	if *mode == "replace" && *index < 0 {
		return chain.InvalidError("upsert-one", "-index is required with -mode replace")
	}

	items, err := loadCatalog(*catalogPath)
	if err != nil {
		return err
	}
	p, ok := property.FindBySlug(items, *slug)
	if !ok {
		return chain.InvalidError("upsert-one", "property %q is not in the catalog", *slug)
	}
	rec, err := registry.ToRecord(p, p.Slug)
	if err != nil {
		return err
	}

	client, closeFn, err := writerFor(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	spin := out.NewSpinner(fmt.Sprintf("Writing %s", rec.Slug))
	spin.Start()
	var res *registry.WriteResult
	switch *mode {
	case "upsert":
		res, err = client.UpsertBySlug(ctx, rec)
	case "replace":
		res, err = client.ReplaceAt(ctx, uint64(*index), rec)
	case "append":
		res, err = client.Append(ctx, rec)
	default:
		err = chain.InvalidError("upsert-one", "unknown mode %q", *mode)
	}
	if err != nil {
		spin.Error("write failed")
		return err
	}

	verb := "replaced"
	if res.Appended {
		verb = "appended"
	}
	spin.Success("%s %s at index %d in tx %s", verb, rec.Slug, res.Index, res.Tx.TxHash.Hex())
	return nil
}

func runReadAll(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := newFlags("read-all")
	catalogPath := fs.String("catalog", cfg.CatalogFile, "Catalog YAML file used to flag on-chain-only records")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	items, err := loadCatalog(*catalogPath)
	if err != nil {
		return err
	}
	client, closeFn, err := readerFor(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	records, err := client.ListProperties(ctx)
	if err != nil {
		return err
	}
	listings := annotate(records, items)
	if *asJSON {
		return writeListingsJSON(out.Writer(), listings)
	}
	return writeListingsTable(out, client.Address().Hex(), listings)
}

func runInvest(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := newFlags("invest")
	slug := fs.String("slug", "", "Property slug (required)")
	quantity := fs.Uint64("quantity", 0, "Number of tokens to buy (required)")
	value := fs.String("value", "0", "Wei to send with the purchase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*slug) == "" {
		return chain.InvalidError("invest", "-slug is required")
	}
	if *quantity == 0 {
		return chain.InvalidError("invest", "-quantity must be positive")
	}
	wei, ok := new(big.Int).SetString(strings.TrimSpace(*value), 10)
	if !ok || wei.Sign() < 0 {
		return chain.InvalidError("invest", "-value %q is not a non-negative wei amount", *value)
	}

	client, closeFn, err := writerFor(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	spin := out.NewSpinner(fmt.Sprintf("Buying %d tokens of %s", *quantity, *slug))
	spin.Start()
	res, err := client.Invest(ctx, *slug, *quantity, wei)
	if err != nil {
		spin.Error("investment failed")
		return err
	}
	spin.Success("bought %d tokens of %s in tx %s", *quantity, *slug, res.TxHash.Hex())
	return nil
}

func runSync(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := newFlags("sync")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	a, err := app.NewApplication(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.SyncOnce(ctx)
	if err != nil {
		return err
	}
	out.Success("mirrored %d properties from %s source (block %d, %d images verified, run %s)",
		rep.Synced, rep.Source, rep.Block, rep.ImagesVerified, rep.RunID)
	return nil
}

func runMigrate(ctx context.Context, cfg *config.Config, _ *logger.Logger, args []string) error {
	fs := newFlags("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := postgres.Migrate(store.DB()); err != nil {
		return err
	}
	out.Success("mirror schema is up to date")
	return nil
}
