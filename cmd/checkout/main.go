// Command checkout prices a basket of scanned identifiers against a catalog file.
//
//	checkout -catalog testdata/catalog.json 1983 4900 8873 6732 0923 1983 1983 1983
//	cat scans.txt | checkout -catalog testdata/catalog.json -v
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-pricing/internal/catalog"
	"github.com/noah-isme/checkout-pricing/internal/obs"
	"github.com/noah-isme/checkout-pricing/internal/pricing"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	catalogPath := fs.String("catalog", "", "catalog JSON file (required)")
	strict := fs.Bool("strict", false, "reject unknown identifiers and invalid promotions")
	verbose := fs.Bool("v", false, "print the priced lines")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logger := obs.NewLoggerTo(stderr, "console", *logLevel)
	if *catalogPath == "" {
		logger.Error().Msg("-catalog is required")
		fs.Usage()
		return 2
	}

	svc := catalog.NewService(catalog.ServiceConfig{Strict: *strict, Logger: logger})
	ctx := context.Background()
	if err := svc.LoadFile(ctx, *catalogPath); err != nil {
		logger.Error().Err(err).Str("file", *catalogPath).Msg("load catalog")
		return 1
	}
	cat, err := svc.Snapshot(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("snapshot catalog")
		return 1
	}

	co := pricing.New(cat, pricing.WithStrict(*strict))
	if err := scan(co, fs.Args(), stdin, logger); err != nil {
		logger.Error().Err(err).Msg("read scans")
		return 1
	}

	quote, err := co.Quote()
	if err != nil {
		logger.Error().Err(err).Msg("price basket")
		return 1
	}
	if *verbose {
		printLines(stdout, quote)
	}
	fmt.Fprintf(stdout, "%d\n", quote.Total)
	return 0
}

// scan feeds identifiers from args, or from whitespace-separated stdin when args is empty.
func scan(co *pricing.Checkout, args []string, stdin io.Reader, logger zerolog.Logger) error {
	if len(args) > 0 {
		for _, id := range args {
			co.Scan(id)
		}
		return nil
	}
	sc := bufio.NewScanner(stdin)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		co.Scan(sc.Text())
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	logger.Debug().Int("units", co.Cart().Units()).Msg("scanned from stdin")
	return nil
}

func printLines(w io.Writer, q pricing.Quote) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRULE\tQTY\tFREE\tAMOUNT")
	for _, l := range q.Lines {
		qty := fmt.Sprint(l.Quantity)
		if l.Partner != "" {
			qty = fmt.Sprintf("%d+%d (%s)", l.Quantity, l.PartnerQuantity, l.Partner)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", l.ID, l.Rule, qty, l.Free, l.Amount.StringFixed(4))
	}
	fmt.Fprintf(tw, "\t\t\tSUBTOTAL\t%s\n", q.Subtotal.StringFixed(4))
	_ = tw.Flush()
}
