// Package main is the entry point for the gpxenrich application
package main

import (
	"github.com/ethpandaops/gpxenrich/cmd"
)

func main() {
	cmd.Execute()
}
