// Package main is the entry point for the optipy CLI.
package main

import "optipy.dev/pkg/optipy/cmd"

func main() {
	cmd.Execute()
}
