// Gantry is a single-machine CI pipeline runner.
//
// Gantry reads a declarative pipeline file, decides from the incoming event
// whether the pipeline should run, executes its jobs concurrently inside
// isolated environments and aggregates the results into one verdict.
package main

import (
	"github.com/opnlabs/gantry/cmd/gantry"
)

func main() {
	gantry.Execute()
}
