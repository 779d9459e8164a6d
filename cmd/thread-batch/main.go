// Command thread-batch splits exported email threads into token-bounded
// batches without calling any model. It exists so batch boundaries can be
// inspected (and tuned via -token-limit) before spending API calls on a
// full digest run.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/theimaginaryfoundation/inbox-o-matic/digest"
	"github.com/theimaginaryfoundation/inbox-o-matic/digest/fileutils"
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

	chunks := digest.ChunkThreads(threads, cfg.TokenLimit)

	var written []string
	for i, chunk := range chunks {
		outPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("batch_%04d.json", i+1))
		if !cfg.Overwrite && fileutils.FileExists(outPath) {
			fmt.Fprintf(os.Stderr, "skipping existing %s (use -overwrite)\n", outPath)
			continue
		}
		if err := fileutils.WriteJSONFileAtomic(outPath, chunk, cfg.Pretty); err != nil {
			fmt.Fprintf(os.Stderr, "failed writing %s: %s\n", outPath, err.Error())
			os.Exit(1)
		}
		written = append(written, outPath)
		fmt.Fprintf(os.Stderr, "progress thread-batch: batch %d/%d threads=%d tokens≈%d\n",
			i+1, len(chunks), len(chunk), batchTokens(chunk))
	}

	fmt.Fprintf(os.Stdout, "threads_in=%d batches_written=%d out_dir=%s\n", len(threads), len(written), cfg.OutputDir)
	for _, p := range written {
		fmt.Fprintln(os.Stdout, p)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to a thread JSON file OR a directory containing thread JSON files")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory to write batch JSON files into")
	fs.IntVar(&cfg.TokenLimit, "token-limit", cfg.TokenLimit, "Approximate token budget per batch")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print each batch JSON file")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing batch files")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/thread-batch -in exports/threads -out out/batches -token-limit 12000")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)
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

func batchTokens(chunk []digest.Thread) int {
	total := 0
	for _, t := range chunk {
		total += digest.EstimateThreadTokens(t)
	}
	return total
}
