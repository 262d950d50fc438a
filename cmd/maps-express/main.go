package main

import (
	"fmt"
	"os"
)

const helpText = `
Maps Express.

Usage:
    maps-express <host> json <json-config-path>
    maps-express <host> etcd <etcd-host>
`

func printHelpAndExit() {
	fmt.Print(helpText)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 4 {
		printHelpAndExit()
	}
	opts := Options{
		Host:       os.Args[1],
		ConfigType: os.Args[2],
		ConfigArg:  os.Args[3],
	}
	if opts.ConfigType != "json" && opts.ConfigType != "etcd" {
		fmt.Printf("Invalid config type: %s\n\n", opts.ConfigType)
		printHelpAndExit()
	}
	os.Exit(run(opts))
}
