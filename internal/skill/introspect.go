package skill

import (
	"runtime/debug"
	"sort"
)

// Introspector answers the debug system queries.
type Introspector interface {
	// Name of the running program.
	Name() string
	// Modules linked into the program.
	Modules() []string
	// SearchPaths where resources are looked up.
	SearchPaths() []string
}

// BuildInfo answers system queries from the binary's embedded build info.
type BuildInfo struct {
	// Fallback is used as name when no build info is available.
	Fallback string
	// Paths are returned by SearchPaths.
	Paths []string

	read func() (*debug.BuildInfo, bool)
}

// NewBuildInfo creates a BuildInfo introspector.
func NewBuildInfo(fallback string, paths ...string) *BuildInfo {
	return &BuildInfo{Fallback: fallback, Paths: paths, read: debug.ReadBuildInfo}
}

// Name returns the main module path.
func (b *BuildInfo) Name() string {
	if info, ok := b.read(); ok && info.Main.Path != "" {
		return info.Main.Path
	}
	return b.Fallback
}

// Modules returns the main module and all dependencies, sorted.
func (b *BuildInfo) Modules() []string {
	info, ok := b.read()
	if !ok {
		return nil
	}
	var mods []string
	if info.Main.Path != "" {
		mods = append(mods, info.Main.Path)
	}
	for _, dep := range info.Deps {
		mods = append(mods, dep.Path)
	}
	sort.Strings(mods)
	return mods
}

// SearchPaths returns the configured resource paths.
func (b *BuildInfo) SearchPaths() []string {
	return append([]string(nil), b.Paths...)
}
