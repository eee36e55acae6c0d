// Package harness generates card VM programs in bulk, runs them against
// dealt boards and records anything that goes wrong.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/psilLang/cardvm/pkg/config"
	"github.com/psilLang/cardvm/pkg/corpus"
	"github.com/psilLang/cardvm/pkg/gen"
	"github.com/psilLang/cardvm/pkg/vm"
)

// ErrStepBound reports a run that executed more instructions than the
// program has bytes.
var ErrStepBound = errors.New("step bound exceeded")

// Result is the outcome of one trial.
type Result struct {
	Seed    int64
	Program *gen.Program
	Outcome corpus.Outcome
	Steps   int
	Covered bool
	Err     error
}

// Report summarises a run.
type Report struct {
	Trials   int
	Outcomes map[corpus.Outcome]int
	Inserted int // trials the required sequence was placed in
	Covered  int // trials that executed it in full
	Stored   int
	Failures []int64 // seeds of non-ok trials, in completion order
	Elapsed  time.Duration
}

// Failed reports whether any trial did not finish cleanly.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

func (r *Report) String() string {
	return fmt.Sprintf("%d trials, %d ok, %d failed, %d/%d covered, %d stored in %s",
		r.Trials, r.Outcomes[corpus.OutcomeOK], len(r.Failures),
		r.Covered, r.Inserted, r.Stored, r.Elapsed.Round(time.Millisecond))
}

// Harness runs the trials a configuration describes.
type Harness struct {
	cfg      *config.Config
	store    *corpus.Store
	log      commonlog.Logger
	required []byte
	opts     []gen.Option

	mu     sync.Mutex
	report *Report
}

// New prepares a harness. store may be nil to skip storage; log may be nil
// to use the package logger.
func New(cfg *config.Config, store *corpus.Store, log commonlog.Logger) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	required, err := cfg.RequiredCode()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.GeneratorOptions()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = commonlog.GetLogger("cardvm.harness")
	}
	return &Harness{
		cfg:      cfg,
		store:    store,
		log:      log,
		required: required,
		opts:     opts,
	}, nil
}

// Run executes every trial. Cancelling ctx stops workers between trials;
// the partial report is returned with the context's error.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	h.report = &Report{Outcomes: make(map[corpus.Outcome]int)}

	workers := min(h.cfg.Workers, max(h.cfg.Trials, 1))
	h.log.Infof("running %d trials on %d workers from seed %d", h.cfg.Trials, workers, h.cfg.Seed)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			wk := h.newWorker()
			for i := w; i < h.cfg.Trials; i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				res := wk.trial(h.cfg.Seed + int64(i))
				if err := h.record(res); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()

	h.report.Elapsed = time.Since(start)
	if err != nil {
		h.log.Errorf("run stopped: %s", err.Error())
	} else {
		h.log.Infof("%s", h.report.String())
	}
	return h.report, err
}

func (h *Harness) record(res *Result) error {
	store := h.store != nil && (res.Outcome != corpus.OutcomeOK || h.cfg.StoreAll)
	if store {
		if err := h.store.Add(entry(res, h.required)); err != nil {
			return fmt.Errorf("seed %d: %w", res.Seed, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.report
	r.Trials++
	r.Outcomes[res.Outcome]++
	if res.Program.Inserted >= 0 && h.required != nil {
		r.Inserted++
	}
	if res.Covered {
		r.Covered++
	}
	if store {
		r.Stored++
	}
	if res.Outcome != corpus.OutcomeOK {
		r.Failures = append(r.Failures, res.Seed)
		h.log.Errorf("seed %d: %s: %s", res.Seed, res.Outcome, res.Err.Error())
	} else {
		h.log.Debugf("seed %d: ok, %d bytes, %d steps", res.Seed, len(res.Program.Code), res.Steps)
	}
	return nil
}

// Classify maps a VM error to an outcome.
func Classify(err error) corpus.Outcome {
	switch {
	case err == nil:
		return corpus.OutcomeOK
	case errors.Is(err, vm.ErrStackUnderflow):
		return corpus.OutcomeUnderflow
	case errors.Is(err, vm.ErrStackOverflow):
		return corpus.OutcomeOverflow
	case errors.Is(err, vm.ErrUnimplemented):
		return corpus.OutcomeUnimplemented
	case errors.Is(err, vm.ErrAssertEmptyStack):
		return corpus.OutcomeAssert
	case errors.Is(err, gen.ErrUnsafe):
		return corpus.OutcomeUnsafe
	}
	return corpus.OutcomeError
}

func entry(res *Result, required []byte) *corpus.Entry {
	p := res.Program
	e := &corpus.Entry{
		Seed:     res.Seed,
		Code:     p.Code,
		Inserted: p.Inserted,
		Outcome:  res.Outcome,
		Steps:    res.Steps,
		Report:   summarize(p, res.Covered),
	}
	if p.Inserted >= 0 {
		e.Required = required
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

func summarize(p *gen.Program, covered bool) *corpus.Report {
	r := &corpus.Report{
		Length:   len(p.Code),
		Branches: len(p.Branches),
		Covered:  covered,
	}
	for i, d := range p.Restrictions {
		if d != gen.Unrestricted {
			r.Restricted++
		}
		if p.Depth[i] >= 0 {
			r.MaxUpper = max(r.MaxUpper, p.Upper[i])
		}
	}
	return r
}
