package main

import (
	"log"

	"github.com/ca-srg/searchchat/cmd"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cmd.Version = version
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
