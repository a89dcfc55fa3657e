package main

import (
	"os"

	"github.com/nextlevelbuilder/memclaw/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
