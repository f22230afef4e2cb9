package bootinfo

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/vesper-os/vesperkernel/pkg/console"
	"github.com/vesper-os/vesperkernel/pkg/klog"
	"github.com/vesper-os/vesperkernel/pkg/memframe"
	"github.com/vesper-os/vesperkernel/pkg/proc"
)

// Booted is the running kernel a process Boot produced: the scheduling
// Kernel plus the console device backing fd 0/1/2, kept alongside so a
// caller (cmd/vkctl) can close it down cleanly.
type Booted struct {
	Kernel  *proc.Kernel
	Console *console.Device
}

// Boot constructs the console device, the frame arena, kernel-shared page
// ranges, and the process manager's kernel process (pid 1), in that order
// — mirroring `proc::init`'s position at the tail end of the original
// kernel's boot sequence (kernel/src/proc/mod.rs), after memory and
// interrupt setup the loader/IDT layers (out of scope here) are assumed to
// have already completed.
func Boot(cfg Config, apps []AppConfig) (*Booted, error) {
	klog.SetLevel(logLevelFromString(cfg.LogLevel))

	dev, err := console.New(cfg.Console)
	if err != nil {
		return nil, err
	}

	arena := memframe.NewAllocator()

	kernelPages := &proc.KernelPages{
		Ranges: []proc.PageRange{
			// The low 2MiB identity-mapped kernel image/stack range every
			// process's page table shares without cloning (spec §3).
			{Start: 0, End: 0x20_0000},
		},
	}

	mgrCfg := proc.ManagerConfig{
		CodeBase:     cfg.CodeBase,
		StackTop:     cfg.StackTop,
		StackSize:    cfg.StackSize,
		MaxHeapPages: cfg.MaxHeapPages,
	}

	images := make([]AppImage, 0, len(apps))
	for _, a := range apps {
		images = append(images, NewAppImage(a))
	}

	biRanges := make([]PageRange, len(kernelPages.Ranges))
	for i, r := range kernelPages.Ranges {
		biRanges[i] = PageRange{Start: r.Start, End: r.End}
	}

	bi, err := New(nil, 0, images, cfg.LogLevel, biRanges)
	if err != nil {
		return nil, err
	}

	mgr := proc.NewProcessManager(arena, kernelPages, mgrCfg, dev, dev, dev, bi.AppSpecs())
	k := proc.NewKernel(mgr)

	klog.Infof("kernel process table initialized, %d app(s) loaded", len(bi.LoadedApps))

	if ok, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
		klog.Warningf("sd_notify failed: %v", notifyErr)
	} else if ok {
		klog.Infof("notified service manager: READY=1")
	}

	return &Booted{Kernel: k, Console: dev}, nil
}

func logLevelFromString(s string) klog.Level {
	switch s {
	case "debug":
		return klog.Debug
	case "warning", "warn":
		return klog.Warning
	default:
		return klog.Info
	}
}
