// Package bootinfo is the boot-time contract between this module and its
// external collaborators: the loader that decodes application images and
// reports the physical memory map (spec §1 Non-goals: "UEFI bootloader and
// ELF loading ... supplies a list of loaded application images and a
// physical-memory map at boot").
package bootinfo

import (
	"fmt"
	"sort"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/vesper-os/vesperkernel/pkg/proc"
)

const (
	// maxMemoryRegions and maxLoadedApps mirror the original's
	// `ArrayVec<_, 256>`/`ArrayVec<_, 16>` fixed capacities (boot/src/lib.rs).
	// Go has no const-generic fixed-capacity vector, so the limits are
	// enforced at construction time instead of at the type level.
	maxMemoryRegions = 256
	maxLoadedApps     = 16
	maxAppNameLen     = 16
)

// MemoryRegion is one entry of the physical memory map the loader reports,
// standing in for `uefi::table::boot::MemoryDescriptor`.
type MemoryRegion struct {
	PhysStart uint64
	PageCount uint64
	Usable    bool
}

// PageRange is a page-aligned virtual address range the kernel maps
// identically into every process (spec §3's "kernel-shared region"),
// standing in for `x86_64::structures::paging::page::PageRangeInclusive`.
type PageRange struct {
	Start, End uint64
}

// AppImage is one application the loader has already parsed off disk: its
// name and a process descriptor reused from opencontainers/runtime-spec
// instead of reinventing an argv/env/cwd shape, the same library the
// teacher's own boot path leans on heavily for process descriptors
// (runsc/boot/loader.go imports specs-go as `specs`).
type AppImage struct {
	Name     string
	Spec     *specs.Process
	CodeSize uint64
}

// NewAppImage builds the AppImage a loader would hand the kernel for one
// configured app, encoding its argv/env/cwd into a specs.Process the way
// runsc/boot/loader.go builds one from an OCI bundle's config.json.
func NewAppImage(cfg AppConfig) AppImage {
	cwd := cfg.Cwd
	if cwd == "" {
		cwd = "/"
	}
	args := cfg.Args
	if len(args) == 0 {
		args = []string{cfg.Name}
	}
	return AppImage{
		Name:     cfg.Name,
		CodeSize: cfg.CodeSize,
		Spec: &specs.Process{
			Args: args,
			Env:  envMapToSlice(cfg.Env),
			Cwd:  cwd,
		},
	}
}

// toAppSpec lowers the loader-facing AppImage into the manager-facing
// proc.AppSpec, decoding the specs.Process descriptor back into the
// argv/env/cwd fields proc.ProcessData carries (spec §6: the loader's
// reported app metadata must reach a spawned process, not just the app's
// name and code size).
func (img AppImage) toAppSpec() proc.AppSpec {
	spec := proc.AppSpec{Name: img.Name, CodeSize: img.CodeSize}
	if img.Spec != nil {
		spec.Args = img.Spec.Args
		spec.Cwd = img.Spec.Cwd
		spec.Env = envSliceToMap(img.Spec.Env)
	}
	return spec
}

// envMapToSlice encodes a config-file env map into the "KEY=VALUE" slice
// form specs.Process.Env uses, in sorted key order for reproducible boots.
func envMapToSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// envSliceToMap decodes specs.Process.Env's "KEY=VALUE" slice form back
// into a map, the shape proc.ProcessData.Env and pkg/apprunner expect.
func envSliceToMap(env []string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// BootInfo is everything the loader hands the kernel at boot, standing in
// for the original's `BootInfo` struct (boot/src/lib.rs).
type BootInfo struct {
	MemoryMap          []MemoryRegion
	PhysicalMemOffset  uint64
	LoadedApps         []AppImage
	LogLevel           string
	KernelPages        []PageRange
}

// New validates the ArrayVec-equivalent capacity limits the original type
// enforced structurally and returns a BootInfo, or an error describing
// which limit was exceeded.
func New(memoryMap []MemoryRegion, physOffset uint64, apps []AppImage, logLevel string, kernelPages []PageRange) (*BootInfo, error) {
	if len(memoryMap) > maxMemoryRegions {
		return nil, fmt.Errorf("bootinfo: memory map has %d regions, exceeds %d", len(memoryMap), maxMemoryRegions)
	}
	if len(apps) > maxLoadedApps {
		return nil, fmt.Errorf("bootinfo: %d loaded apps, exceeds %d", len(apps), maxLoadedApps)
	}
	if len(kernelPages) > 8 {
		return nil, fmt.Errorf("bootinfo: %d kernel page ranges, exceeds 8", len(kernelPages))
	}
	for _, app := range apps {
		if len(app.Name) > maxAppNameLen {
			return nil, fmt.Errorf("bootinfo: app name %q exceeds %d bytes", app.Name, maxAppNameLen)
		}
	}
	return &BootInfo{
		MemoryMap:         memoryMap,
		PhysicalMemOffset: physOffset,
		LoadedApps:        apps,
		LogLevel:          logLevel,
		KernelPages:       kernelPages,
	}, nil
}

// AppSpecs lowers every loaded app image into the proc.AppSpec form
// pkg/proc.NewProcessManager wants, carrying each image's descriptor
// metadata (argv/env/cwd) along with its name and code size.
func (b *BootInfo) AppSpecs() []proc.AppSpec {
	out := make([]proc.AppSpec, len(b.LoadedApps))
	for i, img := range b.LoadedApps {
		out[i] = img.toAppSpec()
	}
	return out
}

// UsablePages sums the page count of every usable memory region, the
// figure pkg/memframe would need to size a production frame arena (this
// simulation's arena grows on demand instead, spec §1: the frame allocator
// is an external collaborator this module only consumes).
func (b *BootInfo) UsablePages() uint64 {
	var total uint64
	for _, r := range b.MemoryMap {
		if r.Usable {
			total += r.PageCount
		}
	}
	return total
}
