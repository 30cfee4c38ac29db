// Command callgrind-index is the CLI entry point: preprocess Callgrind
// traces into binary indexes, query them, and derive call graphs.
package main

import "github.com/callgrind-index/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
