// Command oraqctl inspects and manages oraq admission-control queues
// from the command line.
package main

import "github.com/oraq-io/oraq/cmd/oraqctl/cmd"

func main() {
	cmd.Execute()
}
