package main

import (
	"log"

	"github.com/galerly/galerly/cmd"
	"github.com/galerly/galerly/config"
)

func main() {
	log.Printf("galerly %s (%s)", config.Version, config.CommitHash)
	cmd.Execute()
}
