package main

import (
	"fmt"
	"os"

	"github.com/compozy/nutrilens/cli"
	"github.com/compozy/nutrilens/engine/core"
)

func main() {
	cmd := cli.RootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		// Analysis failures carry a code; usage and setup errors do not.
		if core.ErrorCode(err) != "" {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
