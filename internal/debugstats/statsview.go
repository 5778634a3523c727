//go:build statsview

package debugstats

import (
	"fmt"
	"io"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

// Address is the local listen address for the stats HTTP server.
const Address = "localhost:12600"

const url = "/debug/statsview"

// Launch starts the statsview server in its own goroutine.
func Launch(output io.Writer) {
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(Address))
		mgr := statsview.New()
		mgr.Start()
	}()

	fmt.Fprintf(output, "stats server available at %s%s\n", Address, url)
}

// Available reports whether a statsview build is available to launch.
func Available() bool { return true }
