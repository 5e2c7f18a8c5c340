// Package main provides the entry point for biu8088, a cycle-accurate
// 8088/8086 Bus Interface Unit model.
//
// For the full CLI, use: go run ./cmd/biu8088
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("biu8088 - 8088/8086 Bus Interface Unit model")
	fmt.Println("")
	fmt.Println("Usage: biu8088 [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to a BIU configuration JSON file")
	fmt.Println("  -cycles    Number of cycles to run")
	fmt.Println("  -v         Verbose per-cycle trace output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/biu8088' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/biu8088' instead.")
	}
}
