package allocator

import "github.com/Masterminds/semver/v3"

// Config holds construction-time toggles: a plain struct mutated by a
// slice of Option functions rather than a builder, applied once at
// Construct and never again.
type Config struct {
	Backing            Backing
	EnableDebug        bool
	EnableStats        bool
	MinBackingVersion  string
	MaxDescriptorsHint int
}

type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Backing:            NewHeapBacking(),
		EnableStats:        true,
		MaxDescriptorsHint: 1024,
	}
}

// WithBacking selects the backing allocator implementation (default: the
// Go heap, via NewHeapBacking).
func WithBacking(b Backing) Option {
	return func(c *Config) { c.Backing = b }
}

// WithDebug enables diagnostic logging at allocator decision points
// (block splits, merges, grow/shrink, region release) and makes
// Allocate recover a size==0 precondition panic into a returned error
// instead of letting it crash the caller. It is always a construction-time
// toggle, never an implicit global, so two Allocators in the same
// process can run with different debug settings.
func WithDebug(enabled bool) Option {
	return func(c *Config) { c.EnableDebug = enabled }
}

// WithStats enables/disables the Stats operation.
func WithStats(enabled bool) Option {
	return func(c *Config) { c.EnableStats = enabled }
}

// WithMaxDescriptorsHint reserves registry storage up front. It is a
// capacity hint, not a hard cap: the registry is a plain growable slice,
// and nothing about the free-list algorithm depends on a hard ceiling,
// so exceeding the hint at runtime just costs a reallocation rather than
// failing.
func WithMaxDescriptorsHint(n int) Option {
	return func(c *Config) { c.MaxDescriptorsHint = n }
}

// WithMinBackingVersion validates the configured Backing's reported
// Version() (if it implements versionedBacking) against a semver
// constraint at Construct time, e.g. ">= 1.0.0". A Backing that does not
// report a version satisfies any constraint.
func WithMinBackingVersion(constraint string) Option {
	return func(c *Config) { c.MinBackingVersion = constraint }
}

type versionedBacking interface {
	Version() string
}

func (c *Config) validateBackingVersion() error {
	if c.MinBackingVersion == "" {
		return nil
	}

	vb, ok := c.Backing.(versionedBacking)
	if !ok {
		return nil
	}

	constraint, err := semver.NewConstraint(c.MinBackingVersion)
	if err != nil {
		return newAllocError(CategoryValidation, "PRECONDITION_VIOLATION",
			"invalid MinBackingVersion constraint: "+err.Error())
	}

	version, err := semver.NewVersion(vb.Version())
	if err != nil {
		return newAllocError(CategoryValidation, "PRECONDITION_VIOLATION",
			"backing reported an unparseable version: "+err.Error())
	}

	if !constraint.Check(version) {
		return errBackingVersionTooOld(c.MinBackingVersion, vb.Version())
	}

	return nil
}
