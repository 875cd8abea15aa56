// Package main is the entry point for the nightscout-insights command.
package main

import "github.com/mrcode/nightscout-insights/internal/cmd"

func main() {
	cmd.Execute()
}
