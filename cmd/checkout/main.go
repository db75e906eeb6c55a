package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-checkout/internal/catalog"
	"github.com/noah-isme/backend-checkout/internal/obs"
	"github.com/noah-isme/backend-checkout/internal/pricing"
)

var demoBasket = []string{"1983", "4900", "8873", "6732", "0923", "1983", "1983", "1983"}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		catalogPath  = fs.String("catalog", "", "path to the catalog file (required)")
		scenarioPath = fs.String("scenario", "", "file with one item id per line; defaults to the demo basket")
		places       = fs.Int("places", int(pricing.DefaultPlaces), "fractional digits kept in the total")
		asJSON       = fs.Bool("json", false, "print the priced result as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	logger := obs.NewLoggerTo(stderr, "console")

	if strings.TrimSpace(*catalogPath) == "" {
		logger.Error().Msg("-catalog is required")
		return 1
	}
	cat, err := catalog.NewService(catalog.ServiceConfig{Path: *catalogPath})
	if err != nil {
		logger.Error().Err(err).Msg("load catalog")
		return 1
	}

	scans := demoBasket
	if *scenarioPath != "" {
		if scans, err = readScenario(*scenarioPath); err != nil {
			logger.Error().Err(err).Msg("read scenario")
			return 1
		}
	}

	res, err := price(cat.Catalog(), pricing.NewCalculator(int32(*places)), scans, stdout, *asJSON)
	if err != nil {
		logFailure(logger, err)
		return 1
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logger.Error().Err(err).Msg("encode result")
			return 1
		}
	}
	return 0
}

func price(cat *catalog.Catalog, calc pricing.Calculator, scans []string, out io.Writer, quiet bool) (pricing.Result, error) {
	session := pricing.NewSession(cat, calc)
	for _, id := range scans {
		item, err := session.Scan(id)
		if err != nil {
			return pricing.Result{}, err
		}
		if !quiet {
			fmt.Fprintf(out, "scan %-10s %s\n", item.ID, item.Price.String())
		}
	}
	res, err := session.Total()
	if err != nil {
		return pricing.Result{}, err
	}
	if quiet {
		return res, nil
	}
	for _, line := range res.Rules {
		fmt.Fprintf(out, "rule %s x%d = %s (saves %s)\n", line.Rule, line.Times, line.Subtotal.String(), line.Savings.String())
	}
	for _, line := range res.Leftovers {
		fmt.Fprintf(out, "item %s x%d = %s\n", line.ItemID, line.Count, line.Subtotal.String())
	}
	fmt.Fprintf(out, "total %s\n", res.Total.StringFixed(calc.Places()))
	return res, nil
}

func logFailure(logger zerolog.Logger, err error) {
	var unknown *pricing.UnknownItemError
	var ruleErr *pricing.RuleError
	switch {
	case errors.As(err, &unknown):
		logger.Error().Str("item_id", unknown.ID).Int("position", unknown.Position).Msg("unknown item")
	case errors.As(err, &ruleErr):
		logger.Error().Err(ruleErr.Err).Str("rule", ruleErr.Rule).Int("line", ruleErr.Line).Msg("rule evaluation failed")
	default:
		logger.Error().Err(err).Msg("pricing failed")
	}
}

func readScenario(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var scans []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			scans = append(scans, id)
		}
	}
	return scans, sc.Err()
}
