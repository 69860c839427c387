// Package quality maps user-facing quality tiers to yt-dlp selector strings.
package quality

import (
	"fmt"
	"strings"
)

const (
	// DefaultAudioTier is used when a request omits the audio quality.
	DefaultAudioTier = "320"
	// FallbackAudioBitrate is the selector for unrecognised audio tiers.
	FallbackAudioBitrate = "192K"

	DefaultVideoTier = "1080p"
	LowestVideoTier  = "720p"
)

var audioBitrates = map[string]string{
	"128": "128K",
	"192": "192K",
	"256": "256K",
	"320": "320K",
}

var videoHeights = map[string]int{
	"720p":  720,
	"1080p": 1080,
	"1440p": 1440,
	"2160p": 2160,
}

// AudioTiers lists the accepted audio tiers, lowest first.
var AudioTiers = []string{"128", "192", "256", "320"}

// VideoTiers lists the accepted video tiers, lowest first.
var VideoTiers = []string{"720p", "1080p", "1440p", "2160p"}

// AudioBitrateSelector returns the --audio-quality value for tier.
func AudioBitrateSelector(tier string) string {
	if b, ok := audioBitrates[normalizeAudio(tier)]; ok {
		return b
	}
	return FallbackAudioBitrate
}

// VideoFormatSelector returns the --format expression for tier. Each
// alternative is tried left to right by the tool, so a source without mp4
// at the requested height still resolves.
func VideoFormatSelector(tier string) string {
	h := videoHeights[NormalizeVideoTier(tier)]
	return fmt.Sprintf("best[height<=%d][ext=mp4]/best[height<=%d]/best[ext=mp4]/best", h, h)
}

// NormalizeVideoTier lowercases tier and falls back to DefaultVideoTier.
func NormalizeVideoTier(tier string) string {
	t := strings.ToLower(strings.TrimSpace(tier))
	if _, ok := videoHeights[t]; ok {
		return t
	}
	return DefaultVideoTier
}

// NormalizeAudioTier returns the tier as given when known, DefaultAudioTier when
// empty, and the tier of the fallback bitrate otherwise.
func NormalizeAudioTier(tier string) string {
	t := normalizeAudio(tier)
	if t == "" {
		return DefaultAudioTier
	}
	if _, ok := audioBitrates[t]; ok {
		return t
	}
	return strings.TrimSuffix(FallbackAudioBitrate, "K")
}

func IsVideoTier(tier string) bool {
	_, ok := videoHeights[strings.ToLower(strings.TrimSpace(tier))]
	return ok
}

func IsAudioTier(tier string) bool {
	_, ok := audioBitrates[normalizeAudio(tier)]
	return ok
}

// normalizeAudio accepts "320", "320k" and "320kbps".
func normalizeAudio(tier string) string {
	t := strings.ToLower(strings.TrimSpace(tier))
	t = strings.TrimSuffix(t, "kbps")
	return strings.TrimSuffix(t, "k")
}
