// Package main is the entry point for encodectl.
//
// encodectl is a minimal CLI facade over the encode pipeline core
// (the design treats the public convenience facade as a non-goal; this
// command is deliberately thin — just enough to drive the Controller
// end to end against a directory of raw frames for manual exercise).
package main

import (
	"os"

	"github.com/encodecore/encodecore/cmd/encodectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
