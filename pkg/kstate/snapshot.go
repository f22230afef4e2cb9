// Package kstate is a read-only diagnostic snapshot of kernel state: a
// scaled-down cousin of gvisor's checkpoint/restore state package (spec §1
// scopes this module to the process manager itself, not full execution
// checkpoint/restore, so kstate only ever dumps and diffs, never loads).
package kstate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/mattbaird/jsonpatch"

	"github.com/vesper-os/vesperkernel/pkg/proc"
)

// ProcessSnapshot is one row of a Stat dump (spec §4.2 Stat: "dump process
// table"), serialized rather than just logged so it can be diffed across
// two points in time.
type ProcessSnapshot struct {
	Pid      proc.ProcessId `json:"pid"`
	Name     string         `json:"name"`
	Status   string         `json:"status"`
	Ticks    uint64         `json:"ticks"`
	ExitCode *int64         `json:"exit_code,omitempty"`
}

// Snapshot is a full process-table dump plus the loaded-app list (spec
// §4.2 ListApp), taken at one instant.
type Snapshot struct {
	TakenUnixNano int64             `json:"taken_unix_nano"`
	Processes     []ProcessSnapshot `json:"processes"`
	Apps          []string          `json:"apps"`
}

// Dump reads a consistent snapshot of everything Stat/ListApp would print,
// for callers (cmd/vkctl's `stat` subcommand, a test assertion) that want
// structured data instead of log lines. takenUnixNano is supplied by the
// caller rather than read from time.Now() here, so a deterministic caller
// (a test, a replay tool) can stamp it itself.
func Dump(k *proc.Kernel, takenUnixNano int64) Snapshot {
	procs := k.Stat()
	out := Snapshot{
		TakenUnixNano: takenUnixNano,
		Processes:     make([]ProcessSnapshot, 0, len(procs)),
	}
	for _, p := range procs {
		row := ProcessSnapshot{
			Pid:    p.ID(),
			Name:   p.Name(),
			Status: p.Status().String(),
			Ticks:  p.Ticks(),
		}
		if p.Status() == proc.StatusDead {
			code := p.ExitCode()
			row.ExitCode = &code
		}
		out.Processes = append(out.Processes, row)
	}
	for _, app := range k.ListApp() {
		out.Apps = append(out.Apps, app.Name)
	}
	return out
}

// WriteSnapshot serializes snap as indented JSON to path, guarded by a
// sibling `.lock` file (gofrs/flock) so a concurrent writer (another
// vkctl invocation, a periodic snapshotter) never interleaves two dumps
// into one corrupt file — mirroring the advisory-locking discipline
// pkg/sentry/state's statefile package applies around its own save path,
// translated to a plain file lock since this module has no equivalent of
// gvisor's custom statefile framing.
func WriteSnapshot(path string, snap Snapshot) error {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("kstate: acquiring snapshot lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("kstate: snapshot %q is locked by another writer", path)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("kstate: marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("kstate: writing snapshot %q: %w", path, err)
	}
	return nil
}

// Diff computes a JSON Patch (RFC 6902) describing how `after` differs
// from `before`, letting a caller see exactly which processes changed
// status, ticked, or exited between two snapshots without diffing the
// whole document by eye.
func Diff(before, after Snapshot) ([]byte, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("kstate: marshaling before snapshot: %w", err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("kstate: marshaling after snapshot: %w", err)
	}

	ops, err := jsonpatch.CreatePatch(beforeJSON, afterJSON)
	if err != nil {
		return nil, fmt.Errorf("kstate: computing patch: %w", err)
	}
	return json.MarshalIndent(ops, "", "  ")
}
