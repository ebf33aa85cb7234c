package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"yashubustudio/obdresolver/assets"
	"yashubustudio/obdresolver/resolver"
)

type cliOptions struct {
	configPath   string
	envFiles     []string
	corpusPath   string
	threshold    float64
	thresholdSet bool
	inputPath    string
	queryOpts    resolver.QueryParseOptions
	outputPath   string
	outputDir    string
	stdout       bool
	fetchAssets  bool
	timeout      time.Duration
	otlpEndpoint string
	queries      []string
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("obd-resolve: %v", err)
	}
	if err := run(context.Background(), opts); err != nil {
		log.Fatalf("obd-resolve: %v", err)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (cliOptions, error) {
	var (
		opts    cliOptions
		envFile string
	)
	fs.StringVar(&opts.configPath, "config", "", "Path to config.json (default: ./config.json)")
	fs.StringVar(&envFile, "env", "", "Comma separated .env files to load (default: ./.env)")
	fs.StringVar(&opts.corpusPath, "corpus", "", "JSON/YAML/CSV/TSV phrase corpus (default: built-in OBD-II table)")
	fs.Float64Var(&opts.threshold, "threshold", 0, "Minimum cosine similarity in [-1, 1] (default from config, 0.95)")
	fs.StringVar(&opts.inputPath, "input", "", "Text/CSV/TSV file with one query per line or row")
	fs.StringVar(&opts.queryOpts.QueryColumn, "query-column", "", "Column name or #index holding the query text")
	fs.StringVar(&opts.queryOpts.IDColumn, "id-column", "", "Column name or #index holding the query id")
	fs.StringVar(&opts.outputPath, "output", "", "CSV file to write results (default uses --output-dir/resolve_*.csv)")
	fs.StringVar(&opts.outputDir, "output-dir", "csv", "Directory where result CSVs are written when --output is omitted")
	fs.BoolVar(&opts.stdout, "stdout", false, "Print each resolution to STDOUT")
	fs.BoolVar(&opts.fetchAssets, "fetch-assets", false, "Download missing model/tokenizer files before loading")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Overall deadline, e.g. 2m (0 disables)")
	fs.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "Export traces over OTLP/HTTP to host:port or URL")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options] [--input FILE | QUERY...]\n\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			opts.thresholdSet = true
		}
	})

	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.corpusPath = strings.TrimSpace(opts.corpusPath)
	opts.inputPath = strings.TrimSpace(opts.inputPath)
	opts.outputPath = strings.TrimSpace(opts.outputPath)
	opts.outputDir = strings.TrimSpace(opts.outputDir)
	opts.otlpEndpoint = strings.TrimSpace(opts.otlpEndpoint)
	for _, f := range strings.Split(envFile, ",") {
		if f = strings.TrimSpace(f); f != "" {
			opts.envFiles = append(opts.envFiles, f)
		}
	}
	for _, q := range fs.Args() {
		if q = strings.TrimSpace(q); q != "" {
			opts.queries = append(opts.queries, q)
		}
	}

	if !(opts.threshold >= -1 && opts.threshold <= 1) {
		return opts, fmt.Errorf("--threshold %v is outside [-1, 1]", opts.threshold)
	}
	if opts.inputPath == "" && len(opts.queries) == 0 && !opts.fetchAssets {
		fs.Usage()
		return opts, errors.New("provide --input FILE or at least one query")
	}
	return opts, nil
}

func loadConfig(opts cliOptions) (resolver.Config, error) {
	if err := resolver.LoadEnv(opts.envFiles...); err != nil {
		return resolver.Config{}, err
	}
	cfg, err := resolver.LoadConfig(opts.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, fmt.Errorf("apply env: %w", err)
	}
	if opts.corpusPath != "" {
		cfg.CorpusPath = opts.corpusPath
	}
	if opts.thresholdSet {
		cfg.SetThreshold(float32(opts.threshold))
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func loadCorpus(path string) (resolver.Corpus, error) {
	if path == "" {
		return resolver.DefaultCorpus(), nil
	}
	return resolver.LoadCorpus(path)
}

func run(ctx context.Context, opts cliOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	shutdown, err := setupTracing(ctx, opts.otlpEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Printf("flush traces: %v", err)
		}
	}()

	if opts.fetchAssets {
		d := assets.NewDownloader(logger, progressPrinter(os.Stderr))
		if err := d.Ensure(ctx, assets.FilesFor(cfg.Embedder, cfg.Assets)...); err != nil {
			return fmt.Errorf("fetch assets: %w", err)
		}
	}

	records, err := collectQueries(opts)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		if opts.fetchAssets {
			return nil
		}
		return errors.New("input does not contain any queries")
	}

	corpus, err := loadCorpus(cfg.CorpusPath)
	if err != nil {
		return err
	}
	r, err := resolver.New(cfg, corpus, resolver.OrtOpener(cfg.Embedder), logger)
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}
	defer r.Close()
	if err := r.Initialize(ctx); err != nil {
		return err
	}

	results, err := resolveAll(ctx, r, records)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	if opts.inputPath != "" || opts.outputPath != "" {
		outputPath, err := resolveOutputPath(opts.outputPath, opts.outputDir)
		if err != nil {
			return err
		}
		if err := writeResultCSV(outputPath, records, results); err != nil {
			return err
		}
		fmt.Printf("Results saved to %s\n", outputPath)
	}
	if opts.stdout || opts.inputPath == "" {
		printDispatch(os.Stdout, records, results)
	}
	return nil
}

func collectQueries(opts cliOptions) ([]resolver.QueryRecord, error) {
	var records []resolver.QueryRecord
	if opts.inputPath != "" {
		recs, err := resolver.ParseQueryFile(opts.inputPath, opts.queryOpts)
		if err != nil {
			return nil, fmt.Errorf("read queries: %w", err)
		}
		records = append(records, recs...)
	}
	for _, q := range opts.queries {
		records = append(records, resolver.QueryRecord{Text: q})
	}
	return records, nil
}

type asyncResolver interface {
	ResolveAsync(ctx context.Context, query string) *resolver.Future[resolver.Resolution]
}

// resolveAll resolves records one after another, in input order.
func resolveAll(ctx context.Context, r asyncResolver, records []resolver.QueryRecord) ([]resolver.Resolution, error) {
	out := make([]resolver.Resolution, len(records))
	for i, rec := range records {
		res, err := r.ResolveAsync(ctx, rec.Text).Await(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i+1, err)
		}
		out[i] = res
	}
	return out, nil
}

func resolveOutputPath(path, dir string) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := fmt.Sprintf("resolve_%s.csv", time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}

func writeResultCSV(path string, records []resolver.QueryRecord, results []resolver.Resolution) error {
	if len(records) != len(results) {
		return fmt.Errorf("records/results length mismatch: %d vs %d", len(records), len(results))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	header := []string{"id", "query", "code", "phrase", "score"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		phrase, score := "", ""
		if len(results[i].Results) > 0 {
			best := results[i].Results[0]
			phrase = best.Phrase
			score = fmt.Sprintf("%.3f", best.Score)
		}
		row := []string{rec.ID, rec.Text, results[i].Code, phrase, score}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush result: %w", err)
	}
	return nil
}

// printDispatch shows where each query would go: a matched code is sent to
// the vehicle, anything else falls through to the dialogue pipeline.
func printDispatch(w io.Writer, records []resolver.QueryRecord, results []resolver.Resolution) {
	for i, rec := range records {
		res := results[i]
		if res.Code == resolver.NoMatch || res.Code == "" {
			fmt.Fprintf(w, "%d. %q -> %s (forwarded to dialogue)\n", i+1, rec.Text, resolver.NoMatch)
			continue
		}
		score := float32(0)
		if len(res.Results) > 0 {
			score = res.Results[0].Score
		}
		fmt.Fprintf(w, "%d. %q -> send %s (score=%.3f)\n", i+1, rec.Text, res.Code, score)
	}
}
