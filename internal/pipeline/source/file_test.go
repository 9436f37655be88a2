package source

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireFFmpegTools(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
}

// generateTestClip renders a short synthetic clip via ffmpeg's lavfi inputs,
// avoiding a checked-in media fixture.
func generateTestClip(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")

	cmd := exec.Command("ffmpeg",
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=size=32x32:rate=10:duration=1",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=48000:duration=1",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		path,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "generating synthetic test clip: %s", string(out))
	_, err = os.Stat(path)
	require.NoError(t, err)
	return path
}

func TestMediaFile_DecodesVideoAndAudio(t *testing.T) {
	requireFFmpegTools(t)
	path := generateTestClip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	src, err := NewMediaFile(ctx, path, FileConfig{})
	require.NoError(t, err)
	defer src.Close()

	total, err := src.TotalFrames()
	require.NoError(t, err)
	assert.Greater(t, total, 0)

	frames := 0
	for {
		f, ok, err := src.NextVideoFrame(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Equal(t, 32*32*4, len(f.Data))
		frames++
	}
	assert.Greater(t, frames, 0)

	samples := 0
	for {
		a, ok, err := src.NextAudioSample(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Equal(t, a.Channels, len(a.PlanarFloat))
		assert.Equal(t, a.FrameCount, len(a.PlanarFloat[0]))
		samples++
		if samples > 1000 {
			t.Fatal("audio decode did not terminate")
		}
	}
}
