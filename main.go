// Command plotq runs the plotting job service.
package main

import (
	"fmt"
	"os"

	"github.com/jupark12/go-plot-queue/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
