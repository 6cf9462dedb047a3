package version

// Version is the current version of the Peerwave CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/peerwave/peerwave/internal/version.Version=v1.0.0'"
var Version = "dev"
