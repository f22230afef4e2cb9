package proc

// CurrentPid returns the pid currently marked Running. Real x86_64 kernels
// keep this in a per-CPU cell (spec §9: "Global current process singleton
// ... a CPU-local cell written only by switch_next"); since this kernel
// only ever models one CPU, a field on the manager plays the same role.
// Exported as a thin, lock-taking accessor distinct from the ops.go
// operations so read-only callers (a Stat command, a log line) don't need
// to reach for a full Kernel method.
func CurrentPid(k *Kernel) ProcessId {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Manager.currentPid()
}
