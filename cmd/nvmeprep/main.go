// Package main provides the entry point for the nvmeprep CLI.
package main

import "os"

func main() {
	os.Exit(Execute())
}
