// Package buildinfo carries build-time metadata injected through ldflags,
// kept apart from user configuration.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/tphakala/evalsync/internal/buildinfo.version=..."
var (
	version   = ""
	buildDate = ""
)

const unknown = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// Current returns the metadata linked into this binary. Without ldflags the
// module version recorded by the Go toolchain is used when available.
func Current() *Context {
	ctx := &Context{Version: version, BuildDate: buildDate}
	if ctx.Version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			ctx.Version = info.Main.Version
		}
	}
	return ctx
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// UserAgent returns the User-Agent sent to remote registries.
func (c *Context) UserAgent() string {
	return fmt.Sprintf("evalsync/%s", c.GetVersion())
}
