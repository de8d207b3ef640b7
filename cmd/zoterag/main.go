// Command zoterag is the operator-facing CLI front-end over the library
// API in zoterag.Service: indexing, status, chat, and provider
// management against a single profile's Zotero library.
package main

import (
	"os"

	"github.com/scholarrag/zoterag/cmd/zoterag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
