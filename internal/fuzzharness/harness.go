package fuzzharness

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/clock"
	"github.com/drewcsillag/notecove/internal/config"
	"github.com/drewcsillag/notecove/internal/syncloop"
)

// Config parameterizes one harness run.
type Config struct {
	Scenario Scenario
	Duration time.Duration
	// SDPath, when non-empty, is used instead of a scratch temp directory
	// so a run's artifacts can be inspected afterward.
	SDPath string
	Logger *slog.Logger
	Seed   int64
}

// Result summarizes one completed run.
type Result struct {
	Scenario   Scenario
	Instances  int
	Notes      int
	Elapsed    time.Duration
	Converged  bool
	Mismatches []string
}

// Run drives Config.Scenario's instance/note/adversary profile against a
// shared Storage Directory for Config.Duration, then checks every
// instance's view of every note for convergence (matching vector clock and
// document hash — spec.md §8's P1). A non-nil error means the run itself
// failed to execute; a false Result.Converged with Result.Mismatches
// populated means it ran fine but instances disagree, which is the
// condition the fuzz command reports as a failure.
func Run(ctx context.Context, cfg Config) (Result, error) {
	start := time.Now()
	prof := profileFor(cfg.Scenario)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	sdPath := cfg.SDPath
	if sdPath == "" {
		tmp, err := os.MkdirTemp("", "notecove-fuzz-*")
		if err != nil {
			return Result{}, fmt.Errorf("fuzzharness: create scratch dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		sdPath = filepath.Join(tmp, "sd")
	}
	bkDir, err := os.MkdirTemp("", "notecove-fuzz-bk-*")
	if err != nil {
		return Result{}, fmt.Errorf("fuzzharness: create bookkeeping dir: %w", err)
	}
	defer os.RemoveAll(bkDir)

	clk := clock.System{}
	profileID := uuid.New()
	sdCfg := config.DefaultSDConfig(sdPath)
	sdCfg.ID = uuid.New().String()
	syncCfg := config.SyncConfig{
		PollInterval:    "100ms",
		PollJitter:      "50ms",
		FileReadTimeout: "2s",
		UseFsnotify:     false,
	}

	instances := make([]runInstance, prof.instances)
	for i := range instances {
		mgr := syncloop.NewManager(uuid.New(), profileID, logger.With(slog.Int("fuzz_instance", i)), clk)
		h, err := mgr.Open(ctx, sdPath, sdCfg, syncCfg, filepath.Join(bkDir, fmt.Sprintf("bk-%d.db", i)))
		if err != nil {
			for _, prior := range instances[:i] {
				prior.mgr.CloseAll()
			}
			return Result{}, fmt.Errorf("fuzzharness: open instance %d: %w", i, err)
		}
		instances[i] = runInstance{mgr: mgr, h: h}
	}
	defer func() {
		for _, inst := range instances {
			inst.mgr.CloseAll()
		}
	}()

	noteIDs := make([]uuid.UUID, prof.notes)
	for i := range noteIDs {
		id, err := instances[0].h.CreateNote("", fmt.Sprintf("fuzz note %d", i))
		if err != nil {
			return Result{}, fmt.Errorf("fuzzharness: seed note %d: %w", i, err)
		}
		noteIDs[i] = id
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	seed := cfg.Seed
	if seed == 0 {
		seed = int64(prof.instances)*1_000_003 + int64(prof.notes)*97 + int64(cfg.Duration)
	}

	var wg sync.WaitGroup
	for i, inst := range instances {
		wg.Add(1)
		go func(i int, h *syncloop.Handle) {
			defer wg.Done()
			runWorker(runCtx, h, noteIDs, prof, seed+int64(i))
		}(i, inst.h)
	}

	if prof.adversary {
		adv := newAdversary(instances[0].h.SD(), noteIDs, prof, seed+9999, logger)
		interval := time.Second / time.Duration(prof.adversaryDeliveriesPerSecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			adv.run(runCtx, interval)
		}()
	}

	wg.Wait()

	// Give every instance's poll loop at least a few more cycles to pick
	// up whatever the last worker/adversary write left behind before
	// comparing state.
	settle := config.MustParseDuration(syncCfg.PollInterval, 100*time.Millisecond) * 5
	select {
	case <-ctx.Done():
	case <-time.After(settle):
	}

	handles := make([]*syncloop.Handle, len(instances))
	for i, inst := range instances {
		handles[i] = inst.h
	}
	res, err := compareConvergence(cfg.Scenario, handles, noteIDs)
	if err != nil {
		return Result{}, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// runInstance pairs a Manager with the one Handle it opened, so Run can
// shut each instance down cleanly once the workers and adversary finish.
type runInstance struct {
	mgr *syncloop.Manager
	h   *syncloop.Handle
}

func runWorker(ctx context.Context, h *syncloop.Handle, noteIDs []uuid.UUID, prof profile, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	base := time.Second / time.Duration(prof.editsPerSecond)

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		noteID := noteIDs[rng.Intn(len(noteIDs))]
		text := fmt.Sprintf(" w%d", n)
		if err := h.EditText(noteID, text); err != nil {
			return
		}
		n++

		jitter := time.Duration(rng.Int63n(int64(base)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(base/2 + jitter):
		}
	}
}

// compareConvergence loads every instance's current view of every note and
// checks that they all agree on document hash and vector clock.
func compareConvergence(scenario Scenario, handles []*syncloop.Handle, noteIDs []uuid.UUID) (Result, error) {
	res := Result{Scenario: scenario, Instances: len(handles), Notes: len(noteIDs), Converged: true}

	for _, noteID := range noteIDs {
		var first syncloop.NoteInfo
		for i, h := range handles {
			info, err := h.GetInfo(noteID)
			if err != nil {
				return Result{}, fmt.Errorf("fuzzharness: instance %d getInfo %s: %w", i, noteID, err)
			}
			if i == 0 {
				first = info
				continue
			}
			if info.DocumentHash != first.DocumentHash {
				res.Converged = false
				res.Mismatches = append(res.Mismatches, fmt.Sprintf(
					"note %s: instance 0 hash %s != instance %d hash %s", noteID, first.DocumentHash, i, info.DocumentHash))
			}
			if !vectorClocksEqual(first.VectorClock, info.VectorClock) {
				res.Converged = false
				res.Mismatches = append(res.Mismatches, fmt.Sprintf(
					"note %s: instance 0 vector clock %v != instance %d vector clock %v", noteID, first.VectorClock, i, info.VectorClock))
			}
		}
	}

	return res, nil
}

func vectorClocksEqual(a, b map[string]int64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
