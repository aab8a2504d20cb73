package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/deveshk/invoicescan/internal/config"
	"github.com/deveshk/invoicescan/internal/export"
	"github.com/deveshk/invoicescan/internal/extract"
	"github.com/deveshk/invoicescan/internal/invoice"
	"github.com/deveshk/invoicescan/internal/logger"
	"github.com/deveshk/invoicescan/internal/pipeline"
	"github.com/deveshk/invoicescan/internal/store"
)

func main() {
	// Load .env if present; real environment wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.Configure(cfg.Log.Level, cfg.Log.Format)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "scan":
		runScan(cfg, log)
	case "summary":
		runSummary(cfg, log)
	case "export":
		runExport(cfg, log)
	case "delete":
		runDelete(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Invoice Scan CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  scan      Extract invoice images and store the records")
	fmt.Println("  summary   Print the month-by-vendor roll-up")
	fmt.Println("  export    Write records and the roll-up to an xlsx file")
	fmt.Println("  delete    Delete one stored record by its identity")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openStore opens the configured bolt store under the configured
// granularity.
func openStore(cfg *config.Config, log zerolog.Logger) (store.Store, pipeline.Options) {
	opts, err := cfg.Pipeline.Options()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pipeline configuration")
	}

	st, err := store.NewBolt(cfg.Store.Path, opts.Granularity)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store")
	}
	return st, opts
}

func runScan(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	owner := fs.String("owner", invoice.DefaultOwner, "Owner ID for the stored records")
	fs.Parse(os.Args[2:])

	files := fs.Args()
	if len(files) == 0 {
		log.Fatal().Msg("Usage: cli scan [-owner ID] FILE...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Gemini.TimeoutSecs*len(files))*time.Second)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st, opts := openStore(cfg, log)
	defer st.Close()

	prompt := extract.BuildPrompt(opts.Granularity)
	svc, err := extract.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, prompt)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction service")
	}

	pipe := pipeline.New(svc, st, opts, log)
	if cfg.Pipeline.AutoSummarize {
		pipe.PostBatch = func(ctx context.Context, ownerID string, result *pipeline.BatchResult) {
			if len(result.Processed) == 0 {
				return
			}
			if err := exportOwner(ctx, st, opts, ownerID, cfg.Export.Path); err != nil {
				log.Error().Err(err).Str("path", cfg.Export.Path).Msg("Auto-summarize export failed")
			}
		}
	}

	docs := make([]extract.Document, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to read file")
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		docs = append(docs, extract.Document{
			Filename: filepath.Base(path),
			MIMEType: mimeType,
			Data:     data,
		})
	}

	result := pipe.ProcessBatch(ctx, *owner, docs)

	for _, res := range result.Processed {
		fmt.Printf("%s: %d records (%d new, %d updated)\n", res.Filename, res.Records, res.Created, res.Updated)
	}
	for _, fail := range result.Failed {
		fmt.Printf("%s: FAILED (%s): %s\n", fail.Filename, fail.Kind, fail.Message)
	}

	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}

func runSummary(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	owner := fs.String("owner", invoice.DefaultOwner, "Owner ID to summarize")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	st, opts := openStore(cfg, log)
	defer st.Close()

	records, err := st.List(ctx, *owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list records")
	}

	summary := pipeline.Aggregate(records, opts.GroupByVendor)
	if summary == nil {
		fmt.Println("No records.")
		return
	}

	fmt.Printf("%-10s %-30s %10s %12s %10s %10s\n", "Period", "Group", "Qty", "Total", "Discount", "Tax")
	for _, row := range summary.Rows {
		fmt.Printf("%-10s %-30s %10s %12s %10s %10s\n",
			row.PeriodBucket, row.GroupKey,
			row.Quantity.StringFixed(2), row.TotalPrice.StringFixed(2),
			row.Discount.StringFixed(2), row.TaxAmount.StringFixed(2))
	}
}

// exportOwner writes the owner's records and roll-up to an xlsx file,
// appending records to an existing workbook at the path.
func exportOwner(ctx context.Context, st store.Store, opts pipeline.Options, ownerID, path string) error {
	records, err := st.List(ctx, ownerID)
	if err != nil {
		return err
	}
	summary := pipeline.Aggregate(records, opts.GroupByVendor)

	wb, err := export.OpenWorkbook(path)
	if err != nil {
		return err
	}
	defer wb.Close()

	if err := wb.AppendRecords(records); err != nil {
		return err
	}
	if err := wb.WriteSummary(summary); err != nil {
		return err
	}
	return wb.SaveAs(path)
}

func runExport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	owner := fs.String("owner", invoice.DefaultOwner, "Owner ID to export")
	out := fs.String("out", cfg.Export.Path, "Output xlsx path")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	st, opts := openStore(cfg, log)
	defer st.Close()

	if err := exportOwner(ctx, st, opts, *owner, *out); err != nil {
		log.Fatal().Err(err).Str("path", *out).Msg("Export failed")
	}

	fmt.Printf("Exported records for %s to %s\n", *owner, *out)
}

func runDelete(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	owner := fs.String("owner", invoice.DefaultOwner, "Owner ID of the record")
	number := fs.String("invoice-number", "", "Invoice number")
	dateStr := fs.String("invoice-date", "", "Invoice date (YYYY-MM-DD)")
	vendor := fs.String("vendor", "", "Vendor name")
	product := fs.String("product", "", "Product name (line-item granularity only)")
	fs.Parse(os.Args[2:])

	if *number == "" || *dateStr == "" {
		log.Fatal().Msg("Error: --invoice-number and --invoice-date are required")
	}
	date, err := time.Parse("2006-01-02", *dateStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --invoice-date")
	}

	ctx := logger.WithContext(context.Background(), log)

	st, _ := openStore(cfg, log)
	defer st.Close()

	deleted, err := st.Delete(ctx, invoice.Key{
		OwnerID:       *owner,
		InvoiceNumber: *number,
		InvoiceDate:   date,
		VendorName:    *vendor,
		ProductName:   *product,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Delete failed")
	}
	if !deleted {
		fmt.Println("No matching record.")
		os.Exit(1)
	}
	fmt.Println("Record deleted.")
}
