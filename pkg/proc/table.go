package proc

import "github.com/google/btree"

// tableDegree is the B-tree branching factor. The process table is tiny
// (an educational kernel, not a production scheduler), so this is chosen
// for simplicity, not tuned for cache behavior.
const tableDegree = 8

// pidItem adapts a *Process to google/btree's Item interface, ordering by
// pid so Stat dumps can walk the table in pid order for free.
type pidItem struct {
	pid  ProcessId
	proc *Process
}

func (a pidItem) Less(than btree.Item) bool {
	return a.pid < than.(pidItem).pid
}

// processTable is the ProcessManager's pid -> Process mapping (spec §4.1:
// "process table (mapping pid→Process)"), backed by google/btree instead
// of a bare map so that Stat dumps a self-ordering snapshot without an
// extra sort pass.
type processTable struct {
	tree *btree.BTree
}

func newProcessTable() *processTable {
	return &processTable{tree: btree.New(tableDegree)}
}

func (t *processTable) put(p *Process) {
	t.tree.ReplaceOrInsert(pidItem{pid: p.ID(), proc: p})
}

func (t *processTable) get(pid ProcessId) (*Process, bool) {
	item := t.tree.Get(pidItem{pid: pid})
	if item == nil {
		return nil, false
	}
	return item.(pidItem).proc, true
}

func (t *processTable) remove(pid ProcessId) {
	t.tree.Delete(pidItem{pid: pid})
}

func (t *processTable) len() int { return t.tree.Len() }

// ascend walks every process in pid order, stopping early if fn returns
// false.
func (t *processTable) ascend(fn func(*Process) bool) {
	t.tree.Ascend(func(item btree.Item) bool {
		return fn(item.(pidItem).proc)
	})
}
