package cli

import (
	"github.com/spf13/cobra"

	"github.com/emanuelef/yt-convert-go/internal/service/videourl"
)

type parseResult struct {
	videourl.UrlInfo
	CanonicalURL string `json:"canonicalUrl"`
}

var parseCmd = &cobra.Command{
	Use:   "parse <url>",
	Short: "Show the video identity behind a URL",
	Long: `Parse a YouTube URL without contacting YouTube. Prints the video id, the
canonical watch URL, and whatever else the URL carries (playlist, timestamp,
shorts/live/mobile/music flags).`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	ref, _, err := videourl.RequireCanonical(args[0])
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), parseResult{
		UrlInfo:      videourl.ExtractInfo(args[0]),
		CanonicalURL: ref.CanonicalURL(),
	})
}
