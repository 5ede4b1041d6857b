//go:build debug

package core

// Debug is true when built with the debug tag.
const Debug = true
