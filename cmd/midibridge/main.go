// Command midibridge lists MIDI endpoints and moves raw bytes between them.
package main

import (
	"fmt"
	"os"

	"github.com/leandrodaf/midibridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
