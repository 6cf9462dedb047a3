package main

import (
	"github.com/peerwave/peerwave/cmd"
	"github.com/peerwave/peerwave/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
