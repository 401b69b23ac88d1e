package main

import (
	"fmt"
	"os"
)

func main() {
	rc, err := Cli(os.Args[1:], NewCliConfig())

	if err != nil {
		fmt.Fprintf(os.Stderr, "surreal: error: %s\n", err)
	}

	os.Exit(rc)
}
