package harness

import (
	"fmt"
	"io"

	"github.com/psilLang/cardvm/pkg/corpus"
	"github.com/psilLang/cardvm/pkg/game"
	"github.com/psilLang/cardvm/pkg/gen"
	"github.com/psilLang/cardvm/pkg/vm"
)

// worker owns everything a trial mutates, so workers share nothing but
// the report and the store.
type worker struct {
	h    *Harness
	src  *gen.RandSource
	gen  *gen.Generator
	m    *vm.VM
	want []int // instruction offsets inside the required sequence
}

func (h *Harness) newWorker() *worker {
	src := gen.NewRandSource(0)
	m := vm.New(nil)
	m.Output = io.Discard
	m.RecordVisits = h.required != nil
	return &worker{
		h:    h,
		src:  src,
		gen:  gen.New(src, h.opts...),
		m:    m,
		want: vm.Instructions(h.required),
	}
}

// trial generates, verifies and runs one program. Everything is derived
// from seed, so a trial can be replayed alone.
func (w *worker) trial(seed int64) *Result {
	w.src.Seed(seed)
	cfg := w.h.cfg
	n := cfg.MinLength + w.src.Intn(cfg.MaxLength-cfg.MinLength+1)

	var p *gen.Program
	if w.h.required != nil {
		var err error
		p, err = w.gen.Targeted(max(n, len(w.h.required)), w.h.required)
		if err != nil {
			return &Result{Seed: seed, Program: &gen.Program{Inserted: -1}, Outcome: corpus.OutcomeError, Err: err}
		}
	} else {
		p = w.gen.Program(n)
	}

	res := &Result{Seed: seed, Program: p}
	if err := gen.Verify(p.Code); err != nil {
		res.Outcome, res.Err = Classify(err), err
		return res
	}

	w.m.State = game.Deal(seed)
	w.m.Reset()
	err := w.m.Interpret(p.Code)
	res.Steps = w.m.Steps
	if err == nil && w.m.Steps > len(p.Code) {
		err = fmt.Errorf("%w: %d steps for %d bytes", ErrStepBound, w.m.Steps, len(p.Code))
	}
	res.Outcome, res.Err = Classify(err), err

	if p.Inserted >= 0 && len(w.want) > 0 {
		res.Covered = covered(w.m.Visited, p.Inserted, w.want)
	}
	return res
}

// Replay regenerates and reruns the trial for seed.
func (h *Harness) Replay(seed int64) *Result {
	return h.newWorker().trial(seed)
}

func covered(visited []int, base int, offsets []int) bool {
	seen := make(map[int]bool, len(visited))
	for _, pc := range visited {
		seen[pc] = true
	}
	for _, off := range offsets {
		if !seen[base+off] {
			return false
		}
	}
	return true
}
