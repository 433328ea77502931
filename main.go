// Package main is the entry point for the ovs-nsh datapath tool.
package main

import (
	"fmt"
	"os"

	"github.com/mongiaK/openvswitch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
