package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

var (
	downloadFormat  string
	downloadQuality string
	downloadOut     string
)

var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a video as mp3 or mp4",
	Long: `Download and convert a video into --out, named after its title.

Audio quality is a bitrate tier (128, 192, 256, 320); video quality is a
resolution tier (720p, 1080p, 1440p, 2160p). When the requested resolution is
not available the download falls back to 720p once.

Example:
  ytconv download "https://youtu.be/dQw4w9WgXcQ" --format mp4 --quality 1080p --out ./videos`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadFormat, "format", "f", "mp3", "output format: mp3 or mp4")
	downloadCmd.Flags().StringVarP(&downloadQuality, "quality", "q", "", "quality tier (default 320 for audio, 1080p for video)")
	downloadCmd.Flags().StringVarP(&downloadOut, "out", "o", ".", "directory to write the file to")
}

func runDownload(cmd *cobra.Command, args []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}

	format, ok := domain.ParseFormat(downloadFormat)
	if !ok {
		return fmt.Errorf("invalid --format %q: must be mp3 or mp4", downloadFormat)
	}

	if err := os.MkdirAll(downloadOut, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// Work in a scratch directory so job-named files never land in --out.
	work, err := os.MkdirTemp("", "ytconv-*")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(work)

	orch := newOrchestrator(c, work)

	var artifact *domain.Artifact
	if format == domain.FormatAudio {
		artifact, err = orch.DownloadAudio(cmd.Context(), args[0], downloadQuality)
	} else {
		artifact, err = orch.DownloadVideo(cmd.Context(), args[0], downloadQuality)
	}
	if err != nil {
		return cliError(err)
	}

	dest := filepath.Join(downloadOut, artifact.DisplayFilename)
	if err := moveFile(artifact.Path, dest); err != nil {
		return fmt.Errorf("save %s: %w", dest, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s)\n", dest, artifact.Quality, domain.FormatDuration(artifact.DurationSeconds))
	return nil
}

// moveFile renames src to dst, copying when they are on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// cliError keeps the user-facing message and drops the internal cause.
func cliError(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return fmt.Errorf("%s: %s", de.Kind, de.Message)
	}
	return err
}
