// Command cellrecon reconciles a nucleus mask with a membrane mask and
// writes the resulting membrane mask, keyed by nucleus id.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/colm-brandon-ul/cellmaps/internal/config"
	"github.com/colm-brandon-ul/cellmaps/internal/maskio"
	"github.com/colm-brandon-ul/cellmaps/internal/reconcile"
	"github.com/colm-brandon-ul/cellmaps/internal/report"
	"github.com/colm-brandon-ul/cellmaps/internal/runstore"
	"github.com/colm-brandon-ul/cellmaps/internal/version"
)

var errUsage = errors.New("usage")

type options struct {
	nucleus    string
	membrane   string
	out        string
	configPath string
	dbPath     string
	reportDir  string
	workers    int
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("cellrecon", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.nucleus, "nucleus", "", "Nucleus instance mask (PNG or TIFF)")
	fs.StringVar(&o.membrane, "membrane", "", "Membrane instance mask (PNG or TIFF)")
	fs.StringVar(&o.out, "out", "", "Output membrane mask path (.png, .tif or .tiff)")
	fs.StringVar(&o.configPath, "config", "", "Reconcile config JSON; unset fields keep their defaults")
	fs.StringVar(&o.dbPath, "db", "", "SQLite run ledger (disabled if empty)")
	fs.StringVar(&o.reportDir, "report-dir", "", "Directory for the expansion histogram and dashboard (disabled if empty)")
	fs.IntVar(&o.workers, "workers", 0, "Worker goroutines (0 = config or CPU count)")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.version {
		return o, nil
	}
	if o.nucleus == "" || o.membrane == "" || o.out == "" {
		fs.Usage()
		return nil, fmt.Errorf("%w: -nucleus, -membrane and -out are required", errUsage)
	}
	if o.workers < 0 {
		return nil, fmt.Errorf("%w: -workers must be non-negative", errUsage)
	}
	return o, nil
}

func loadConfig(o *options) (*config.ReconcileConfig, error) {
	cfg := config.DefaultReconcileConfig()
	if o.configPath != "" {
		fileCfg, err := config.LoadReconcileConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}
	if o.workers > 0 {
		cfg.Workers = &o.workers
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	nucleus, err := maskio.ReadFile(o.nucleus)
	if err != nil {
		return fmt.Errorf("read nucleus mask: %w", err)
	}
	membrane, err := maskio.ReadFile(o.membrane)
	if err != nil {
		return fmt.Errorf("read membrane mask: %w", err)
	}
	if nucleus, err = reconcile.Prepare(ctx, nucleus, cfg); err != nil {
		return err
	}
	if membrane, err = reconcile.Prepare(ctx, membrane, cfg); err != nil {
		return err
	}

	res, err := reconcile.New(cfg).Reconcile(ctx, nucleus, membrane)
	if err != nil {
		return err
	}
	if err := maskio.WriteFile(o.out, res.Final); err != nil {
		return err
	}
	log.Printf("wrote %s: %d matched, %d orphaned, %d skipped, growth distance %.2f px",
		o.out, res.Matched, res.Orphans(), res.Skipped, res.Distance)

	rec := runstore.NewRun(res, cfg)
	rec.NucleusPath, rec.MembranePath, rec.OutputPath = o.nucleus, o.membrane, o.out

	if o.dbPath != "" {
		store, err := runstore.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Insert(rec); err != nil {
			return err
		}
		log.Printf("recorded run %s in %s", rec.RunID, o.dbPath)
	}

	if o.reportDir != "" {
		if err := writeReports(o.reportDir, rec, res); err != nil {
			return err
		}
	}
	return nil
}

func writeReports(dir string, rec *runstore.Run, res *reconcile.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := report.WriteHistogram(filepath.Join(dir, "expansion.png"), res); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, "dashboard.html"))
	if err != nil {
		return fmt.Errorf("create dashboard: %w", err)
	}
	if err := report.RenderDashboard(f, rec, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("cellrecon: %v", err)
	}
}
