// Command blkar encodes, decodes, inspects, and repairs SBX block
// containers.
package main

import "os"

func main() {
	// Subcommands print their own error report (JSON or text) before
	// returning an error, so Execute's error here only selects the exit
	// code. Printing it again would break the one-JSON-object-per-run
	// contract.
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
