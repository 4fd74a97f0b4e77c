// Package buildinfo contains build-time metadata kept apart from user configuration.
package buildinfo

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetNodeName() string
}

// Context holds build-time metadata. Version and BuildDate are injected
// through -ldflags in main; NodeName is the configured detector name.
type Context struct {
	Version   string
	BuildDate string
	NodeName  string
}

// New returns a Context for the given build metadata.
func New(version, buildDate, nodeName string) *Context {
	return &Context{Version: version, BuildDate: buildDate, NodeName: nodeName}
}

func valueOrUnknown(v string) string {
	if v == "" {
		return UnknownValue
	}
	return v
}

// GetVersion implements BuildInfo.
func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return valueOrUnknown(c.Version)
}

// GetBuildDate implements BuildInfo.
func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return valueOrUnknown(c.BuildDate)
}

// GetNodeName implements BuildInfo.
func (c *Context) GetNodeName() string {
	if c == nil {
		return UnknownValue
	}
	return valueOrUnknown(c.NodeName)
}
