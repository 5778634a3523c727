// Package debugstats is an optional package built only when the statsview
// build tag is present. It provides an HTTP server running locally offering
// live goroutine/heap statistics via github.com/go-echarts/statsview.
//
// After launch, graphical statistics are viewable at:
//
//	localhost:12600/debug/statsview
package debugstats
