package fuzzharness

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/drewcsillag/notecove/internal/crdt"
	"github.com/drewcsillag/notecove/internal/frame"
	"github.com/drewcsillag/notecove/internal/storedir"
)

// adversary simulates the opaque replicator's least convenient behaviors:
// delayed delivery (a visible incomplete frame that only later becomes
// complete) and, for the chaos scenario, outright corruption. It writes
// into a phantom instance directory that no real syncloop.Handle in this
// run owns, so its traffic is indistinguishable to the merge engine from a
// peer device this note has never seen before.
type adversary struct {
	sd      storedir.SD
	noteIDs []uuid.UUID
	logger  *slog.Logger
	rng     *rand.Rand
	prof    profile

	phantomID uuid.UUID
	seq       int64
}

func newAdversary(sd storedir.SD, noteIDs []uuid.UUID, prof profile, seed int64, logger *slog.Logger) *adversary {
	return &adversary{
		sd:        sd,
		noteIDs:   noteIDs,
		logger:    logger,
		rng:       rand.New(rand.NewSource(seed)),
		prof:      prof,
		phantomID: uuid.New(),
	}
}

// run delivers phantom-peer updates until ctx is done, each one arriving
// as a torn write that completes after a short, random delay — the
// "caught mid-copy" case every merge pass must tolerate without losing
// track of other instances' progress.
func (a *adversary) run(ctx context.Context, interval time.Duration) {
	if len(a.noteIDs) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			noteID := a.noteIDs[a.rng.Intn(len(a.noteIDs))]
			a.deliver(noteID)
		}
	}
}

func (a *adversary) deliver(noteID uuid.UUID) {
	dir := a.sd.UpdatesDir(noteID, a.phantomID)
	name := storedir.UpdateFileName(a.seq)
	a.seq++

	if a.prof.corruptChance > 0 && a.rng.Float64() < a.prof.corruptChance {
		if a.rng.Intn(2) == 0 {
			// A frame with neither the complete nor incomplete flag: the
			// reader must quarantine it and keep merging every other file.
			if err := frame.WriteAtomicRaw(dir, name, []byte{0x7f, 0xff, 0xff}); err != nil {
				a.logger.Warn("fuzzharness: adversary corrupt write failed", slog.String("error", err.Error()))
			}
			return
		}
		// A well-framed, flag-complete file whose payload the CRDT library
		// itself rejects: the merge engine must quarantine just this file
		// rather than aborting the whole note (spec.md §4.5 step 5 / §7).
		if err := frame.WriteAtomicComplete(dir, name, []byte("not valid crdt update json")); err != nil {
			a.logger.Warn("fuzzharness: adversary undecodable payload write failed", slog.String("error", err.Error()))
		}
		return
	}

	payload := a.buildPeerUpdate(noteID)
	sloppy := frame.SloppyWriter{}
	if err := sloppy.WritePartial(dir, name, payload[:len(payload)/2]); err != nil {
		a.logger.Warn("fuzzharness: adversary partial write failed", slog.String("error", err.Error()))
		return
	}

	delay := time.Duration(a.rng.Intn(50)) * time.Millisecond
	time.Sleep(delay)

	if err := sloppy.CompleteWrite(dir, name, payload); err != nil {
		a.logger.Warn("fuzzharness: adversary complete write failed", slog.String("error", err.Error()))
	}
}

// buildPeerUpdate fabricates one encoded CRDT insert op attributed to the
// phantom instance, as if a peer device none of this run's real instances
// know about had typed a character.
func (a *adversary) buildPeerUpdate(noteID uuid.UUID) []byte {
	doc := crdt.NewDoc(a.phantomID.String())
	doc.InsertText(nil, fmt.Sprintf("~%d", a.seq))
	return doc.EncodeUpdate()
}
