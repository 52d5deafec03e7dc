// Package buildinfo carries build-time metadata injected by the linker.
package buildinfo

import "runtime/debug"

const unknown = "unknown"

// Context holds values set at build time, never from configuration.
type Context struct {
	Version   string
	BuildDate string
}

// New returns a Context, falling back to the module version recorded by
// the Go toolchain when version is empty.
func New(version, buildDate string) *Context {
	if version == "" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			version = bi.Main.Version
		}
	}
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the version or "unknown".
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date or "unknown".
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}
