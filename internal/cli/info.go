package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Fetch title, thumbnail and duration of a video",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}

	info, err := newOrchestrator(c, os.TempDir()).FetchInfo(cmd.Context(), args[0])
	if err != nil {
		return cliError(err)
	}

	return printJSON(cmd.OutOrStdout(), &domain.VideoInfoResponse{
		ID:        info.VideoID,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  domain.FormatDuration(info.DurationSeconds),
	})
}
