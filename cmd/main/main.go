package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"coinmarket/scraper/internal/client"
	"coinmarket/scraper/internal/config"
	"coinmarket/scraper/internal/container"
	"coinmarket/scraper/internal/service"
)

const usageText = `Usage: scraper <command> [flags]

Commands:
  fetch <catalogId>    fetch and store one catalog [--skip-cache] [--refresh] [--browser]
  fetch-all            fetch every known catalog [--skip-cache] [--refresh]
  discover [rootId]    list catalogs under a taxonomy node [--depth N] [--fetch]
  search <query>       search stored coins [--limit N]
  price <itemId>       print the market price record of one item
  clear                drop the catalog store and the content cache
  status               print store freshness

Flags:
`

type options struct {
	configPath string
	skipCache  bool
	refresh    bool
	browser    bool
	depth      int
	fetch      bool
	limit      int
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Errorf("❌ %v", err)
		if hint := client.Remediation(err); hint != "" {
			log.Errorf("💡 %s", hint)
		}
		os.Exit(1)
	}
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flags := pflag.NewFlagSet("scraper", pflag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default ./config.yaml if present)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.skipCache, "skip-cache", false, "neither read nor write the content cache")
	flags.BoolVar(&opts.refresh, "refresh", false, "ignore cached pages but store the fresh ones")
	flags.BoolVar(&opts.browser, "browser", false, "render pages in the headless browser")
	flags.IntVar(&opts.depth, "depth", -1, "maximum discovery depth (default from config)")
	flags.BoolVar(&opts.fetch, "fetch", false, "fetch every discovered catalog")
	flags.IntVar(&opts.limit, "limit", 20, "maximum number of search results")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		flags.PrintDefaults()
	}
	return flags
}

// fetchOptions maps the cache flags onto client options. --skip-cache wins
// over --refresh because the client checks it first.
func fetchOptions(opts options) client.FetchOptions {
	return client.FetchOptions{
		SkipCache: opts.skipCache,
		Refresh:   opts.refresh,
		Browser:   opts.browser,
	}
}

func run(args []string) error {
	var opts options
	flags := newFlagSet(&opts)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	positional := flags.Args()
	if len(positional) == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(opts.configPath, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	configureLogging(cfg.Log)

	app, err := container.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := positional[0], positional[1:]
	switch command {
	case "fetch":
		return runFetch(ctx, app, rest, opts)
	case "fetch-all":
		return runFetchAll(ctx, app, opts)
	case "discover":
		return runDiscover(ctx, app, rest, opts)
	case "search":
		return runSearch(ctx, app, rest, opts)
	case "price":
		return runPrice(ctx, app, rest)
	case "clear":
		return app.Service.Clear(ctx)
	case "status":
		return runStatus(ctx, app)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func configureLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("⚠️ Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func runFetch(ctx context.Context, app *container.Container, args []string, opts options) error {
	if len(args) != 1 {
		return errors.New("usage: scraper fetch <catalogId>")
	}

	catalog, err := app.Service.FetchCatalog(ctx, args[0], fetchOptions(opts))
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s): %d coins, grades %v\n", catalog.CatalogID, catalog.Name, len(catalog.Coins), catalog.GradeColumns)
	return nil
}

func runFetchAll(ctx context.Context, app *container.Container, opts options) error {
	report, err := app.Service.FetchAll(ctx, fetchOptions(opts))
	if report != nil {
		printReport(report)
	}
	if err != nil {
		return err
	}
	if report.Total > 0 && report.Succeeded == 0 {
		return fmt.Errorf("all %d catalogs failed", report.Total)
	}
	return nil
}

func runDiscover(ctx context.Context, app *container.Container, args []string, opts options) error {
	var root int64
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid root id %q: %w", args[0], err)
		}
		root = id
	}

	catalogs, err := app.Service.Discover(ctx, root, opts.depth)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(catalogs))
	for id := range catalogs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("%s\t%s\n", id, catalogs[id])
	}
	fmt.Printf("%d catalogs\n", len(ids))

	if !opts.fetch || len(catalogs) == 0 {
		return nil
	}

	report, err := app.Service.FetchCatalogs(ctx, catalogs, fetchOptions(opts))
	if report != nil {
		printReport(report)
	}
	return err
}

func runSearch(ctx context.Context, app *container.Container, args []string, opts options) error {
	if len(args) == 0 {
		return errors.New("usage: scraper search <query>")
	}

	query := args[0]
	for _, a := range args[1:] {
		query += " " + a
	}

	records, err := app.Provider.Search(ctx, query, opts.limit)
	if err != nil {
		return err
	}

	for _, r := range records {
		grades := make([]string, 0, len(r.GradedPrices))
		for grade := range r.GradedPrices {
			grades = append(grades, grade)
		}
		sort.Strings(grades)

		fmt.Printf("%s\t%s\t%s\n", r.ItemID, r.Name, r.Category)
		for _, grade := range grades {
			band := r.GradedPrices[grade]
			fmt.Printf("    %-12s %10s %10s %10s\n", grade, band.Low.StringFixed(2), band.Mid.StringFixed(2), band.High.StringFixed(2))
		}
	}
	fmt.Printf("%d results\n", len(records))
	return nil
}

func runPrice(ctx context.Context, app *container.Container, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: scraper price <itemId>")
	}

	record, err := app.Provider.GetPrice(ctx, args[0])
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no price found for item %s", args[0])
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode price record: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runStatus(ctx context.Context, app *container.Container) error {
	status, err := app.Service.Status(ctx)
	if err != nil {
		return err
	}
	needsRefresh, err := app.Provider.NeedsRefresh(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("source:        %s\n", app.Provider.Name())
	fmt.Printf("available:     %t\n", app.Provider.IsAvailable(ctx))
	fmt.Printf("catalogs:      %d (%d fresh, %d stale)\n", status.Catalogs, status.Fresh, status.Stale)
	fmt.Printf("coins:         %d\n", status.Coins)
	fmt.Printf("ttl:           %dh\n", status.TTLHours)
	if !status.LastFetched.IsZero() {
		fmt.Printf("last fetched:  %s\n", status.LastFetched.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("needs refresh: %t\n", needsRefresh)

	if !app.Provider.IsAvailable(ctx) {
		fmt.Println(client.Remediation(client.ErrAuthenticationRequired))
	}
	return nil
}

func printReport(report *service.Report) {
	fmt.Printf("fetched %d/%d catalogs, %d failed\n", report.Succeeded, report.Total, len(report.Failed))

	classes := make([]string, 0, len(report.Classes))
	for class := range report.Classes {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		fmt.Printf("  %-24s %d\n", class, report.Classes[class])
	}

	for _, id := range report.FailedIDs() {
		err := report.Failed[id]
		fmt.Printf("  catalog %s: [%s] %v\n", id, client.ErrorClass(err), err)
		if hint := client.Remediation(err); hint != "" {
			fmt.Printf("    %s\n", hint)
		}
	}
}
