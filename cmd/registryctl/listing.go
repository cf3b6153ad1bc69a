package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/R3E-Network/property_registry/internal/cli"
	"github.com/R3E-Network/property_registry/internal/domain/property"
	"github.com/R3E-Network/property_registry/internal/registry"
)

// listing is one registry entry as read-all prints it.
type listing struct {
	Index       int                `json:"index"`
	Property    *property.Property `json:"property,omitempty"`
	OnChainOnly bool               `json:"on_chain_only"`
	Error       string             `json:"error,omitempty"`
}

// annotate decodes records in registry order and flags slugs that the local
// catalog does not contain. Undecodable records are kept with their error.
func annotate(records []registry.Record, local []property.Property) []listing {
	known := make(map[string]bool, len(local))
	for _, p := range local {
		known[p.Key()] = true
	}

	listings := make([]listing, 0, len(records))
	for i, rec := range records {
		l := listing{Index: i}
		p, err := registry.ToProperty(rec)
		if err != nil {
			l.Error = err.Error()
		} else {
			l.Property = &p
			l.OnChainOnly = !known[p.Slug]
		}
		listings = append(listings, l)
	}
	return listings
}

func writeListingsJSON(w io.Writer, listings []listing) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(listings)
}

func writeListingsTable(p *cli.Printer, address string, listings []listing) error {
	if len(listings) == 0 {
		p.Warning("registry %s holds no properties", address)
		return nil
	}
	p.Info("registry %s holds %d properties", address, len(listings))

	tw := tabwriter.NewWriter(p.Writer(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSLUG\tCITY\tSTATUS\tAVAILABLE\tAPY\tPRICE\tNOTE")
	onChainOnly := 0
	for _, l := range listings {
		if l.Property == nil {
			fmt.Fprintf(tw, "%d\t-\t-\t-\t-\t-\t-\t%s\n", l.Index, p.Colorize("undecodable: "+l.Error, cli.ColorRed))
			continue
		}
		note := ""
		if l.OnChainOnly {
			note = p.Colorize("on-chain only", cli.ColorYellow)
			onChainOnly++
		}
		prop := l.Property
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			l.Index, prop.Slug, prop.City, prop.Status, prop.Available, prop.Total, prop.APY, prop.TokenPrice, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if onChainOnly > 0 {
		p.Warning("%d properties are on-chain only (not in the local catalog)", onChainOnly)
	}
	return nil
}
