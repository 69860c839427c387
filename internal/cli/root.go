// Package cli implements the ytconv command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emanuelef/yt-convert-go/internal/config"
	"github.com/emanuelef/yt-convert-go/internal/service/downloader"
	"github.com/emanuelef/yt-convert-go/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	cfgErr  error
)

// newRunner builds the tool runner. Tests replace it.
var newRunner = func(path string) downloader.Runner {
	return downloader.NewYtDlp(path)
}

var rootCmd = &cobra.Command{
	Use:   "ytconv",
	Short: "Convert YouTube videos to mp3 or mp4",
	Long: `ytconv runs the same pipeline as the API server without the HTTP layer:

  - parse a URL into its video identity (no network)
  - fetch video metadata through yt-dlp
  - download and convert a video into a local file

Example:
  ytconv parse "https://youtu.be/dQw4w9WgXcQ?t=43"
  ytconv download "https://youtu.be/dQw4w9WgXcQ" --format mp3 --quality 192 --out ./music`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default: $CONFIG_FILE, then environment only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)

	if verbose {
		logger.SetupDevelopment()
		return
	}
	logger.Setup(&logger.Config{Level: "warn", Format: "text", Output: os.Stderr})
}

// loadedConfig returns the configuration or the reason it could not be loaded.
func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("load config: %w", cfgErr)
	}
	if cfg == nil {
		return config.Default(), nil
	}
	return cfg, nil
}

func newOrchestrator(c *config.Config, outDir string) *downloader.Orchestrator {
	dc := downloader.DefaultConfig()
	dc.MaxFileSize = c.MaxFileSize
	dc.MaxDuration = c.MaxDuration
	dc.OutputDir = outDir
	dc.Timeout = c.DownloadTimeout
	dc.YtDlpPath = c.YtDlpPath
	dc.FFmpegPath = c.FFmpegPath
	return downloader.New(dc, newRunner(c.YtDlpPath))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
