// Command phonedb builds and queries phone-number indexes from delimited
// text extracts.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/phonedb/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
