package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerwave/peerwave/internal/call"
	"github.com/peerwave/peerwave/internal/config"
	"github.com/peerwave/peerwave/internal/media"
	"github.com/peerwave/peerwave/internal/signaling"
	"github.com/peerwave/peerwave/internal/ui"
)

var (
	flagCallDomain   string
	flagCallSTUN     string
	flagCallTURN     string
	flagCallTURNUser string
	flagCallTURNPass string
	flagCallRelay    bool
	flagCallInsecure bool
	flagCallNick     string
)

var callCmd = &cobra.Command{
	Use:     "call <room|url>",
	Aliases: []string{"c"},
	Short:   "Join a room and start a call",
	Long: `Join the named room on the relay and negotiate a direct call with
whoever else joins it. The first side in the room waits; negotiation
starts as soon as the second side arrives.

Examples:
  peerwave call calm-lagoon-otter
  peerwave call https://peerwave.qzz.io/c/calm-lagoon-otter
  peerwave call calm-lagoon-otter --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return runCall(room)
	},
}

func init() {
	callCmd.Flags().StringVarP(&flagCallDomain, "domain", "d", "", "relay server domain")
	callCmd.Flags().StringVar(&flagCallSTUN, "stun", "", "STUN server address")
	callCmd.Flags().StringVar(&flagCallTURN, "turn", "", "TURN server address")
	callCmd.Flags().StringVar(&flagCallTURNUser, "turn-user", "", "TURN username")
	callCmd.Flags().StringVar(&flagCallTURNPass, "turn-pass", "", "TURN password")
	callCmd.Flags().BoolVar(&flagCallRelay, "relay", false, "force TURN-relayed media paths")
	callCmd.Flags().BoolVar(&flagCallInsecure, "insecure", false, "use ws:// for local relay servers")
	callCmd.Flags().StringVarP(&flagCallNick, "nick", "n", "", "name shown to the peer in chat")

	rootCmd.AddCommand(callCmd)
}

func runCall(room string) error {
	cfg, err := LoadConfig(config.Options{
		Domain:     flagCallDomain,
		STUNServer: flagCallSTUN,
		TURNServer: flagCallTURN,
		TURNUser:   flagCallTURNUser,
		TURNPass:   flagCallTURNPass,
		ForceRelay: flagCallRelay,
		Insecure:   flagCallInsecure,
	})
	if err != nil {
		return err
	}

	nick := flagCallNick
	if nick == "" {
		nick = defaultNick()
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	client := signaling.NewClient(cfg.WebSocketURL)
	if err := client.Connect(); err != nil {
		stopSpinner()
		return call.NewError("connect to relay", err)
	}
	stopSpinner()

	handler := signaling.NewHandler(client)
	go handler.Start()

	session := call.NewSession(room, nick, client, handler, media.NewDeviceSource(), call.NewPionFactory(cfg))

	started := time.Now()
	runErr := make(chan error, 1)
	go func() {
		runErr <- session.Run()
	}()

	stats, uiErr := ui.RunCall(session, room, nick)
	if uiErr != nil {
		session.Hangup()
	}
	err = <-runErr

	summary := ui.CallSummary{
		Room:     room,
		Outcome:  outcomeText(err),
		Duration: time.Since(started),
		Messages: stats.Messages,
	}
	fmt.Println()
	ui.RenderCallSummary(summary)

	if uiErr != nil {
		return uiErr
	}
	if err != nil && !errors.Is(err, call.ErrPeerDisconnected) {
		return err
	}
	return nil
}

func outcomeText(err error) string {
	switch {
	case err == nil:
		return "hung up"
	case errors.Is(err, call.ErrPeerDisconnected):
		return "peer left"
	case errors.Is(err, call.ErrConnectionFailed):
		return "connection failed"
	default:
		return "failed"
	}
}

func defaultNick() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "you"
	}
	return host
}

// parseRoomInput accepts a bare room name or a full room link and
// returns the room name.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room name is required")
	}

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		u, err := url.Parse(input)
		if err != nil {
			return "", fmt.Errorf("invalid room link: %w", err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		room := parts[len(parts)-1]
		if room == "" {
			return "", fmt.Errorf("room link %q carries no room name", input)
		}
		return room, nil
	}

	return input, nil
}