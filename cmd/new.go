package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peerwave/peerwave/internal/roomname"
	"github.com/peerwave/peerwave/internal/ui"
)

var newCmd = &cobra.Command{
	Use:     "new",
	Aliases: []string{"n"},
	Short:   "Generate a fresh room name to share",
	Long: `Generate a memorable room name. Share it with the other side, then
both run "peerwave call <room>". Rooms exist on the relay only while
someone is in them, so nothing is reserved by this command.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		room := roomname.Generate()
		fmt.Println()
		ui.NewRoomInfo(room).Render()
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
}