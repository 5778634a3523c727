//go:build !statsview

package debugstats

import "io"

// Launch is a no-op when the statsview build tag is absent.
func Launch(output io.Writer) {}

// Available reports whether a statsview build is available to launch.
func Available() bool { return false }
