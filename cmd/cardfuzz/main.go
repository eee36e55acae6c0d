// cardfuzz generates and runs card VM programs in bulk and stores the ones
// that fail in a SQLite corpus.
//
// Usage: cardfuzz [-config cardfuzz.toml] [-corpus runs.db] [-v N]
//
//	cardfuzz -corpus runs.db -list underflow
//	cardfuzz -corpus runs.db -list all -export fixtures/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/psilLang/cardvm/pkg/config"
	"github.com/psilLang/cardvm/pkg/corpus"
	"github.com/psilLang/cardvm/pkg/harness"
	"github.com/psilLang/cardvm/pkg/vm"
)

func main() {
	configPath := flag.String("config", "", "Configuration file (.toml or .yaml)")
	corpusPath := flag.String("corpus", "", "Corpus database (overrides the configuration)")
	trials := flag.Int("trials", 0, "Number of trials (overrides the configuration)")
	seed := flag.Int64("seed", 0, "First seed (overrides the configuration)")
	verbose := flag.Int("v", -1, "Log verbosity (overrides the configuration)")
	list := flag.String("list", "", "List stored entries with this outcome (\"all\" for every entry) and exit")
	export := flag.String("export", "", "With -list, write each listed entry to this directory as a CBOR fixture")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fail(err)
		}
	}
	if *corpusPath != "" {
		cfg.Corpus = *corpusPath
	}
	if *trials > 0 {
		cfg.Trials = *trials
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *verbose >= 0 {
		cfg.Verbosity = *verbose
	}
	commonlog.Configure(cfg.Verbosity, nil)

	var store *corpus.Store
	if cfg.Corpus != "" {
		var err error
		store, err = corpus.Open(cfg.Corpus)
		if err != nil {
			fail(err)
		}
		defer store.Close()
	}

	if *list != "" {
		if store == nil {
			fail(fmt.Errorf("-list needs a corpus"))
		}
		if err := listEntries(store, *list, *export); err != nil {
			fail(err)
		}
		return
	}

	h, err := harness.New(cfg, store, commonlog.GetLogger("cardfuzz"))
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := h.Run(ctx)
	fmt.Println(report)
	for o, n := range report.Outcomes {
		fmt.Printf("  %-14s %d\n", o, n)
	}
	if err != nil {
		fail(err)
	}
	if report.Failed() {
		if store != nil {
			store.Close()
		}
		os.Exit(1)
	}
}

func listEntries(store *corpus.Store, outcome, exportDir string) error {
	if outcome == "all" {
		outcome = ""
	}
	entries, err := store.List(corpus.Outcome(outcome))
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s seed %d: %s, %d bytes, %d steps\n", e.ID, e.Seed, e.Outcome, len(e.Code), e.Steps)
		if e.Error != "" {
			fmt.Printf("  %s\n", e.Error)
		}
		fmt.Printf("  %s\n", vm.FormatBytes(e.Code))
	}
	if exportDir != "" {
		n, err := store.Export(exportDir, corpus.Outcome(outcome))
		if err != nil {
			return err
		}
		fmt.Printf("exported %d fixtures to %s\n", n, exportDir)
	}
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
