// Command digest-run builds one inbox digest end to end: it loads exported
// email threads, categorizes them in batches, summarizes each category, writes
// the digest document to disk, and optionally archives it in SQLite.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/theimaginaryfoundation/inbox-o-matic/digest"
	"github.com/theimaginaryfoundation/inbox-o-matic/digest/archive"
	"github.com/theimaginaryfoundation/inbox-o-matic/digest/fileutils"
	"github.com/theimaginaryfoundation/inbox-o-matic/digest/provider"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *archive.Store
	if cfg.DBPath != "" {
		store, err = archive.Open(cfg.DBPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		defer store.Close()

		if cfg.MinInterval > 0 && !cfg.Force {
			last, err := store.LatestDigest(ctx, cfg.UserID)
			switch {
			case err == nil:
				if age := time.Since(last.GeneratedAt); age < cfg.MinInterval {
					fmt.Fprintf(os.Stdout, "skipped: last digest for %s is %s old (min interval %s, use -force)\n",
						cfg.UserID, age.Round(time.Minute), cfg.MinInterval)
					return
				}
			case errors.Is(err, sql.ErrNoRows):
				// First digest for this user.
			default:
				fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
		}
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	llm := provider.New(&client, cfg.Model)

	inputFiles, err := collectInputFiles(cfg.InputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(inputFiles) == 0 {
		fmt.Fprintln(os.Stderr, "no input .json files found")
		os.Exit(2)
	}

	var threads []digest.Thread
	for _, f := range inputFiles {
		loaded, err := loadThreads(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed loading %s: %s\n", f, err.Error())
			os.Exit(1)
		}
		threads = append(threads, loaded...)
	}
	if len(threads) == 0 {
		fmt.Fprintln(os.Stderr, "no threads found in input")
		os.Exit(2)
	}

	session := digest.NewSession(cfg.UserID, llm, llm, digest.SessionOptions{
		TokenLimit:  cfg.TokenLimit,
		Concurrency: cfg.Concurrency,
	})

	start := time.Now()
	total := len(threads)
	for off := 0; off < total; off += cfg.BatchSize {
		end := off + cfg.BatchSize
		if end > total {
			end = total
		}
		ready, err := session.CategorizeBatch(ctx, threads[off:end], total)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed categorizing threads %d-%d: %s\n", off+1, end, err.Error())
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "progress digest-run: %d/%d threads categorized (ready=%v elapsed=%s)\n",
			session.Processed(), session.Expected(), ready, time.Since(start).Round(time.Second))
	}

	doc, err := session.GenerateSummaries(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := fileutils.WriteJSONFileAtomic(cfg.OutputPath, doc, cfg.Pretty); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	archiveID := ""
	if store != nil {
		archiveID, err = store.SaveDigest(ctx, doc)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	items := 0
	for _, section := range doc.Sections {
		items += len(section.Summaries)
	}
	fmt.Fprintf(os.Stdout, "user=%s session=%s threads=%d sections=%d items=%d out=%s",
		doc.UserID, doc.SessionID, total, len(doc.Sections), items, cfg.OutputPath)
	if archiveID != "" {
		fmt.Fprintf(os.Stdout, " archive_id=%s", archiveID)
	}
	fmt.Fprintln(os.Stdout)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to a thread JSON file OR a directory containing thread JSON files")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Path to write the digest JSON document to")
	fs.StringVar(&cfg.DBPath, "db", "", "Optional SQLite archive database path (digest history)")
	fs.StringVar(&cfg.UserID, "user", "", "User the digest is generated for")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use for categorization and summarization (e.g. gpt-5-mini)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.IntVar(&cfg.TokenLimit, "token-limit", cfg.TokenLimit, "Approximate token budget per categorization call")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Threads submitted per categorization batch")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrent categorization calls per batch")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the digest JSON document")
	fs.DurationVar(&cfg.MinInterval, "min-interval", cfg.MinInterval, "Skip the run if the archive already holds a digest newer than this (requires -db)")
	fs.BoolVar(&cfg.Force, "force", false, "Generate even if a recent digest exists in the archive")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/digest-run -in exports/threads -out out/digest.json -db out/digests.db -user u1 -min-interval 20h")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	if cfg.DBPath != "" {
		cfg.DBPath = filepath.Clean(cfg.DBPath)
	}
	return cfg, nil
}

func collectInputFiles(inputPath string) ([]string, error) {
	fi, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("stat -in: %w", err)
	}

	if !fi.IsDir() {
		if strings.ToLower(filepath.Ext(inputPath)) != ".json" {
			return nil, fmt.Errorf("input file must be .json: %s", inputPath)
		}
		return []string{inputPath}, nil
	}

	entries, err := os.ReadDir(inputPath)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) != ".json" {
			continue
		}
		files = append(files, filepath.Join(inputPath, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// loadThreads reads one export file holding either a JSON array of threads or
// a single thread object.
func loadThreads(path string) ([]digest.Thread, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var many []digest.Thread
	if err := json.Unmarshal(b, &many); err == nil {
		return many, nil
	}

	var one digest.Thread
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return []digest.Thread{one}, nil
}
