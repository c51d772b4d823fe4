// Package main provides the entry point for envcerts.
package main

import "github.com/princespaghetti/envcerts/internal/cli"

func main() {
	cli.Execute()
}
