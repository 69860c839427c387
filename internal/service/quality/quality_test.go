package quality

import "testing"

func TestAudioBitrateSelector(t *testing.T) {
	tests := []struct {
		tier string
		want string
	}{
		{"128", "128K"},
		{"192", "192K"},
		{"256", "256K"},
		{"320", "320K"},
		{"320k", "320K"},
		{"256kbps", "256K"},
		{"64", "192K"},
		{"999", "192K"},
		{"", "192K"},
		{"best", "192K"},
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			if got := AudioBitrateSelector(tt.tier); got != tt.want {
				t.Errorf("AudioBitrateSelector(%q) = %q, want %q", tt.tier, got, tt.want)
			}
		})
	}
}

func TestVideoFormatSelector(t *testing.T) {
	tests := []struct {
		tier string
		want string
	}{
		{"720p", "best[height<=720][ext=mp4]/best[height<=720]/best[ext=mp4]/best"},
		{"1080p", "best[height<=1080][ext=mp4]/best[height<=1080]/best[ext=mp4]/best"},
		{"1440p", "best[height<=1440][ext=mp4]/best[height<=1440]/best[ext=mp4]/best"},
		{"2160P", "best[height<=2160][ext=mp4]/best[height<=2160]/best[ext=mp4]/best"},
		{"480p", "best[height<=1080][ext=mp4]/best[height<=1080]/best[ext=mp4]/best"},
		{"", "best[height<=1080][ext=mp4]/best[height<=1080]/best[ext=mp4]/best"},
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			if got := VideoFormatSelector(tt.tier); got != tt.want {
				t.Errorf("VideoFormatSelector(%q) = %q, want %q", tt.tier, got, tt.want)
			}
		})
	}
}

func TestUnknownTiersMatchDefaults(t *testing.T) {
	if VideoFormatSelector("bogus") != VideoFormatSelector(DefaultVideoTier) {
		t.Error("unknown video tier should map to the default tier selector")
	}
	if AudioBitrateSelector("bogus") != FallbackAudioBitrate {
		t.Error("unknown audio tier should map to the fallback bitrate")
	}
}

func TestNormalizeTiers(t *testing.T) {
	if got := NormalizeVideoTier(" 1440P "); got != "1440p" {
		t.Errorf("NormalizeVideoTier = %q, want 1440p", got)
	}
	if got := NormalizeVideoTier("8k"); got != DefaultVideoTier {
		t.Errorf("NormalizeVideoTier = %q, want %q", got, DefaultVideoTier)
	}
	if got := NormalizeAudioTier(""); got != DefaultAudioTier {
		t.Errorf("NormalizeAudioTier(\"\") = %q, want %q", got, DefaultAudioTier)
	}
	if got := NormalizeAudioTier("256k"); got != "256" {
		t.Errorf("NormalizeAudioTier(256k) = %q, want 256", got)
	}
	if got := NormalizeAudioTier("64"); got != "192" {
		t.Errorf("NormalizeAudioTier(64) = %q, want 192", got)
	}
}

func TestTierPredicates(t *testing.T) {
	for _, tier := range VideoTiers {
		if !IsVideoTier(tier) {
			t.Errorf("expected %q to be a video tier", tier)
		}
		if IsAudioTier(tier) {
			t.Errorf("did not expect %q to be an audio tier", tier)
		}
	}
	for _, tier := range AudioTiers {
		if !IsAudioTier(tier) {
			t.Errorf("expected %q to be an audio tier", tier)
		}
	}
	if IsVideoTier("360p") {
		t.Error("360p is not offered")
	}
}
