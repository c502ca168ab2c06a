// Package main is the entry point for the replay command line tool.
package main

import "github.com/quantfold/replaycore/internal/cli"

func main() {
	cli.Execute()
}
