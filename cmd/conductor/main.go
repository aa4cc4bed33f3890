// Command conductor runs a Conductor engine and inspects its job types and
// queue health.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
