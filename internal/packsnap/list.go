package packsnap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/drewcsillag/notecove/internal/frame"
)

// ListPacksResult is the outcome of scanning an instance's own or a peer's
// packs/<instanceId> directory.
type ListPacksResult struct {
	Packs       []Pack
	Incomplete  []Range
	Quarantined []Range
}

// ListPacks scans dir for pack files, decoding each flag-complete one and
// classifying incomplete/corrupt entries the same way updatestore.List
// does for loose updates.
func ListPacks(logger *slog.Logger, dir string) (ListPacksResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ListPacksResult{}, nil
		}
		return ListPacksResult{}, fmt.Errorf("packsnap: readdir %s: %w", dir, err)
	}

	var result ListPacksResult
	skipped := 0

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if frame.IsTempName(name) || frame.IsQuarantined(name) {
			continue
		}
		first, last, ok := parsePackName(name)
		if !ok {
			skipped++
			continue
		}
		rng := Range{First: first, Last: last}

		payload, err := frame.ReadFrame(dir, name)
		switch {
		case err == nil:
			pack, derr := DecodePack(payload)
			if derr != nil {
				if qerr := frame.Quarantine(dir, name); qerr != nil {
					return result, fmt.Errorf("packsnap: quarantine %s/%s: %w", dir, name, qerr)
				}
				logger.Error("packsnap: quarantined undecodable pack",
					slog.String("dir", dir), slog.String("name", name), slog.String("error", derr.Error()))
				result.Quarantined = append(result.Quarantined, rng)
				continue
			}
			pack.Filename = name
			result.Packs = append(result.Packs, pack)
		case errors.Is(err, frame.ErrIncomplete):
			result.Incomplete = append(result.Incomplete, rng)
		case errors.Is(err, frame.ErrCorrupt):
			if qerr := frame.Quarantine(dir, name); qerr != nil {
				return result, fmt.Errorf("packsnap: quarantine %s/%s: %w", dir, name, qerr)
			}
			logger.Error("packsnap: quarantined corrupt pack", slog.String("dir", dir), slog.String("name", name))
			result.Quarantined = append(result.Quarantined, rng)
		default:
			return result, fmt.Errorf("packsnap: read %s/%s: %w", dir, name, err)
		}
	}

	if skipped > 0 {
		logger.Warn("packsnap: skipped pack entries with non-conforming names",
			slog.String("dir", dir), slog.Int("count", skipped))
	}
	return result, nil
}

// parsePackName parses "<first>-<last>.yjson".
func parsePackName(name string) (int64, int64, bool) {
	const ext = ".yjson"
	if !strings.HasSuffix(name, ext) {
		return 0, 0, false
	}
	stem := strings.TrimSuffix(name, ext)
	idx := strings.IndexByte(stem, '-')
	if idx <= 0 || idx == len(stem)-1 {
		return 0, 0, false
	}
	first, err := strconv.ParseInt(stem[:idx], 10, 64)
	if err != nil || first < 0 {
		return 0, 0, false
	}
	last, err := strconv.ParseInt(stem[idx+1:], 10, 64)
	if err != nil || last < first {
		return 0, 0, false
	}
	return first, last, true
}

// ListSnapshotsResult is the outcome of scanning an instance's own or a
// peer's snapshots/<instanceId> directory.
type ListSnapshotsResult struct {
	Candidates  []Candidate
	Incomplete  int
	Quarantined int
}

// ListSnapshots scans dir for snapshot files, decoding each flag-complete
// one into a Candidate for SelectBest.
func ListSnapshots(logger *slog.Logger, dir string) (ListSnapshotsResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ListSnapshotsResult{}, nil
		}
		return ListSnapshotsResult{}, fmt.Errorf("packsnap: readdir %s: %w", dir, err)
	}

	var result ListSnapshotsResult
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if frame.IsTempName(name) || frame.IsQuarantined(name) {
			continue
		}
		if !strings.HasSuffix(name, ".yjson") {
			continue
		}

		payload, err := frame.ReadFrame(dir, name)
		switch {
		case err == nil:
			snap, derr := DecodeSnapshot(payload)
			if derr != nil {
				if qerr := frame.Quarantine(dir, name); qerr != nil {
					return result, fmt.Errorf("packsnap: quarantine %s/%s: %w", dir, name, qerr)
				}
				logger.Error("packsnap: quarantined undecodable snapshot",
					slog.String("dir", dir), slog.String("name", name), slog.String("error", derr.Error()))
				result.Quarantined++
				continue
			}
			result.Candidates = append(result.Candidates, Candidate{Filename: name, Snapshot: snap})
		case errors.Is(err, frame.ErrIncomplete):
			result.Incomplete++
		case errors.Is(err, frame.ErrCorrupt):
			if qerr := frame.Quarantine(dir, name); qerr != nil {
				return result, fmt.Errorf("packsnap: quarantine %s/%s: %w", dir, name, qerr)
			}
			logger.Error("packsnap: quarantined corrupt snapshot", slog.String("dir", dir), slog.String("name", name))
			result.Quarantined++
		default:
			return result, fmt.Errorf("packsnap: read %s/%s: %w", dir, name, err)
		}
	}
	return result, nil
}
