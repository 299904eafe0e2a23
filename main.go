// ABOUTME: Entry point for the stemdeck command line player
// ABOUTME: Delegates to the cobra commands in internal/cli
package main

import "github.com/stemdeck/stemdeck-go/internal/cli"

func main() {
	cli.Execute()
}
