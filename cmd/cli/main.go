package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-records-api/internal/app"
	"github.com/dvloznov/finance-records-api/internal/config"
	"github.com/dvloznov/finance-records-api/internal/dataset"
	"github.com/dvloznov/finance-records-api/internal/gcs"
	"github.com/dvloznov/finance-records-api/internal/logger"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "period":
		runPeriod(log)
	case "trips":
		runTrips(log)
	case "sheets":
		runSheets(log)
	case "refresh":
		runRefresh(log)
	case "upload":
		runUpload(log)
	case "ls":
		runList(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Records CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  period    Resolve a period phrase to its date range")
	fmt.Println("  trips     List trips reconstructed from the travel card")
	fmt.Println("  sheets    List the sheets of every configured workbook")
	fmt.Println("  refresh   Reread workbooks into the cache")
	fmt.Println("  upload    Upload a workbook to GCS")
	fmt.Println("  ls        List workbooks under a GCS prefix")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup parses the common flags and builds the service.
func setup(fs *flag.FlagSet, log zerolog.Logger) (*app.App, context.Context, context.CancelFunc) {
	configFile := fs.String("config", os.Getenv("CONFIG_FILE"), "YAML config overlay")
	envFile := fs.String("env", ".env", "dotenv file, skipped when missing")
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	ctx = logger.WithContext(ctx, log)

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	return svc, ctx, cancel
}

func runPeriod(log zerolog.Logger) {
	fs := flag.NewFlagSet("period", flag.ExitOnError)
	svc, _, cancel := setup(fs, log)
	defer cancel()
	defer svc.Close()

	token := strings.Join(fs.Args(), " ")
	p := svc.Periods.Resolve(token)

	green.Printf("%s\n", p.Label)
	if p.IsUnbounded() {
		fmt.Println("  no date bounds")
		return
	}
	fmt.Printf("  start: %s\n", p.Start.Format(time.RFC3339))
	fmt.Printf("  end:   %s\n", p.End.Format(time.RFC3339))
}

func runTrips(log zerolog.Logger) {
	fs := flag.NewFlagSet("trips", flag.ExitOnError)
	token := fs.String("period", "", "period phrase, all time when empty")
	svc, ctx, cancel := setup(fs, log)
	defer cancel()
	defer svc.Close()

	records, err := svc.Loader.Records(ctx, dataset.TravelBuddy)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load travel card data")
	}

	res := svc.Engine.Trips(records, svc.Periods.Resolve(*token))
	yellow.Printf("%d trips (%s)\n", res.Count, res.Period)
	for _, t := range res.Trips {
		fmt.Printf("  %-28s %-14s %s  ", t.TripID, t.Country, t.Dates)
		green.Printf("%.2f\n", t.Spend)
	}
}

func runSheets(log zerolog.Logger) {
	fs := flag.NewFlagSet("sheets", flag.ExitOnError)
	svc, ctx, cancel := setup(fs, log)
	defer cancel()
	defer svc.Close()

	info := svc.Loader.SheetInfo(ctx)
	for _, name := range dataset.All {
		fi, ok := info[name]
		if !ok {
			continue
		}
		yellow.Printf("%s ", name)
		fmt.Printf("(%s)\n", fi.File)
		if fi.Error != "" {
			red.Printf("  Error: %s\n", fi.Error)
			continue
		}
		for _, sheet := range fi.Sheets {
			fmt.Printf("  - %s\n", sheet)
		}
	}
}

func runRefresh(log zerolog.Logger) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	only := fs.String("dataset", "", "refresh a single dataset")
	svc, ctx, cancel := setup(fs, log)
	defer cancel()
	defer svc.Close()

	names := svc.Loader.Names()
	if *only != "" {
		name, err := dataset.ParseName(*only)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid dataset")
		}
		names = []dataset.Name{name}
	}

	failed := false
	for _, name := range names {
		n, err := svc.Loader.Refresh(ctx, name)
		if err != nil {
			red.Printf("  ✗ %s: %v\n", name, err)
			failed = true
			continue
		}
		green.Printf("  → %s: %d records\n", name, n)
	}
	if failed {
		os.Exit(1)
	}
}

// storage returns the GCS client, creating one when no workbook is remote.
func storage(ctx context.Context, svc *app.App, log zerolog.Logger) *gcs.Client {
	if svc.Storage != nil {
		return svc.Storage
	}
	client, err := gcs.NewClient(ctx, gcs.Options{
		CredentialsFile: svc.Config.GCS.CredentialsFile,
		Endpoint:        svc.Config.GCS.Endpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	svc.Storage = client
	return client
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local workbook")
	dest := fs.String("to", "", "destination gs://bucket/object or gs://bucket/prefix/")
	svc, ctx, cancel := setup(fs, log)
	defer cancel()
	defer svc.Close()

	if *filePath == "" || !gcs.IsURI(*dest) {
		log.Fatal().Msg("Usage: cli upload -file PATH -to gs://BUCKET/OBJECT")
	}

	uri := *dest
	if strings.HasSuffix(uri, "/") {
		uri += filepath.Base(*filePath)
	}

	log.Info().Str("file", *filePath).Str("uri", uri).Msg("Uploading workbook to GCS")

	if err := storage(ctx, svc, log).Upload(ctx, uri, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	green.Printf("Uploaded %s to %s\n", *filePath, uri)
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	svc, ctx, cancel := setup(fs, log)
	defer cancel()
	defer svc.Close()

	if fs.NArg() != 1 || !gcs.IsURI(fs.Arg(0)) {
		log.Fatal().Msg("Usage: cli ls gs://BUCKET/PREFIX")
	}

	uris, err := storage(ctx, svc, log).List(ctx, fs.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("List failed")
	}
	sort.Strings(uris)
	for _, uri := range uris {
		fmt.Println(uri)
	}
}
