package proc

import "github.com/mohae/deepcopy"

// MaxFds bounds the per-process file-descriptor table (spec §3: "a small
// fixed array of stream handles"). Slots beyond fd 2 are reserved for
// future use and always report -1 (spec §6).
const MaxFds = 16

// FileDescriptor is a byte-stream handle. fd 0 implementations only need
// to support Read, fd 1/2 only Write; callers that call the unsupported
// half should get a plain error, which ReadFd/WriteFd turn into -1.
type FileDescriptor interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// ProcessData is per-process mutable bookkeeping: environment map, argv,
// working directory, fd table, semaphore table, optional parent, and the
// set of children this process has spawned or forked (spec §3, extended
// per spec §6's app descriptor metadata).
type ProcessData struct {
	Env      map[string]string
	Args     []string
	Cwd      string
	Fds      [MaxFds]FileDescriptor
	Sems     *SemaphoreSet
	Parent   *ProcessId
	Children []ProcessId
}

// NewProcessData constructs fresh bookkeeping for a spawned (non-forked)
// process: fd 0/1/2 come from stdio, fd 3+ are left nil (reserved). args
// and cwd come from the app image's descriptor (pkg/bootinfo.AppImage's
// specs.Process, by way of proc.AppSpec).
func NewProcessData(env map[string]string, args []string, cwd string, stdin, stdout, stderr FileDescriptor, parent *ProcessId) *ProcessData {
	d := &ProcessData{
		Env:  copyEnv(env),
		Args: append([]string(nil), args...),
		Cwd:  cwd,
		Sems: NewSemaphoreSet(),
	}
	d.Fds[0] = stdin
	d.Fds[1] = stdout
	d.Fds[2] = stderr
	if parent != nil {
		p := *parent
		d.Parent = &p
	}
	return d
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// EnvGet looks up a variable by name.
func (d *ProcessData) EnvGet(key string) (string, bool) {
	v, ok := d.Env[key]
	return v, ok
}

// AddChild records a spawned or forked child pid.
func (d *ProcessData) AddChild(pid ProcessId) {
	d.Children = append(d.Children, pid)
}

// RemoveChild drops a reaped or orphaned child from the bookkeeping list.
func (d *ProcessData) RemoveChild(pid ProcessId) {
	for i, c := range d.Children {
		if c == pid {
			d.Children = append(d.Children[:i], d.Children[i+1:]...)
			return
		}
	}
}

// Fork duplicates parent ProcessData per spec §4.4 step 4: env is
// deep-cloned (mohae/deepcopy, since it is plain value data with no
// sharing semantics of its own), the fd table is duplicated slot-for-slot
// but each slot keeps pointing at the same underlying stream (a real
// fd-table dup, not a stream clone), and the semaphore table is shared by
// reference — counters are never duplicated. Children always starts
// empty: the parent's existing kids are its own, not the new child's —
// the caller (ProcessManager.fork) adds the new child to the parent's
// own Children list once it has a pid.
func (d *ProcessData) Fork(childParent ProcessId) *ProcessData {
	child := &ProcessData{
		Env:      deepcopy.Copy(d.Env).(map[string]string),
		Args:     append([]string(nil), d.Args...),
		Cwd:      d.Cwd,
		Sems:     d.Sems,
		Parent:   &childParent,
		Children: nil,
	}
	child.Fds = d.Fds
	return child
}

// ReadFd reads from fd, returning -1 for an invalid fd, a write-only fd,
// or any underlying error (spec §7: "Invalid fd / buffer: read/write
// return a negative count").
func (d *ProcessData) ReadFd(fd int, buf []byte) int64 {
	if fd < 0 || fd >= MaxFds || d.Fds[fd] == nil {
		return -1
	}
	n, err := d.Fds[fd].Read(buf)
	if err != nil && n == 0 {
		return -1
	}
	return int64(n)
}

// WriteFd writes to fd, returning -1 under the same conditions as ReadFd.
func (d *ProcessData) WriteFd(fd int, buf []byte) int64 {
	if fd < 0 || fd >= MaxFds || d.Fds[fd] == nil {
		return -1
	}
	n, err := d.Fds[fd].Write(buf)
	if err != nil && n == 0 {
		return -1
	}
	return int64(n)
}
