package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/encodecore/encodecore/internal/ffmpeg"
	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// FileConfig configures a pre-recorded-file Source (the fourth input
// shape: "decoded to produce both a visual sequence, sampled at frame_rate,
// and an audio buffer, chunked into blocks sized to roughly one
// frame-duration").
type FileConfig struct {
	Logger      *slog.Logger
	FFmpegPath  string
	FFprobePath string

	// FrameRate overrides the probed source frame rate for video sampling.
	// Zero uses the probed rate.
	FrameRate int
}

// fileSource decodes a media file through two independent FFmpeg
// subprocesses, one per stream, each piping raw samples back through a
// chunking io.Writer. Grounded on internal/ffmpeg's StreamWithStdin
// pipe-before-start pattern, already exercised by the video/audio encoders
// in the opposite direction.
type fileSource struct {
	hasVideo, hasAudio bool
	width, height      int
	frameRate          int
	sampleRate         int
	channels           int
	totalFrames        int

	videoCh chan *types.Frame
	audioCh chan *types.AudioSample

	videoCmd *ffmpeg.Command
	audioCmd *ffmpeg.Command

	mu       sync.Mutex
	videoErr error
	audioErr error

	closeOnce sync.Once
}

// NewMediaFile probes path and starts decoding it into video frames and
// audio blocks. The returned Source owns both FFmpeg subprocesses; Close
// must be called once the caller is done draining it.
func NewMediaFile(ctx context.Context, path string, cfg FileConfig) (Source, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}

	prober := ffmpeg.NewProber(cfg.FFprobePath)
	info, err := prober.ProbeSimple(ctx, path)
	if err != nil {
		return nil, types.NewError(types.KindInvalidInput, "probing media file: "+err.Error())
	}

	fs := &fileSource{
		hasVideo: info.VideoWidth > 0 && info.VideoHeight > 0,
		hasAudio: info.AudioSampleRate > 0 && info.AudioChannels > 0,
		width:    info.VideoWidth,
		height:   info.VideoHeight,
	}
	if !fs.hasVideo && !fs.hasAudio {
		return nil, types.NewError(types.KindInvalidInput, "media file has neither a video nor an audio stream")
	}

	fs.frameRate = cfg.FrameRate
	if fs.frameRate <= 0 {
		fs.frameRate = int(info.VideoFramerate)
	}
	if fs.frameRate <= 0 {
		fs.frameRate = 30
	}
	fs.sampleRate = info.AudioSampleRate
	fs.channels = info.AudioChannels

	if info.Duration > 0 && fs.hasVideo {
		fs.totalFrames = int(info.Duration) * fs.frameRate / 1000
	}

	if fs.hasVideo {
		fs.videoCh = make(chan *types.Frame, 4)
		fs.videoCmd = ffmpeg.NewCommandBuilder(cfg.FFmpegPath).
			HideBanner().
			Input(path).
			VideoFilter(fmt.Sprintf("fps=%d", fs.frameRate)).
			OutputArgs("-an", "-pix_fmt", "rgba", "-f", "rawvideo").
			Output("pipe:1").
			Build()

		chunker := &frameChunker{width: fs.width, height: fs.height, frameSize: fs.width * fs.height * 4, out: fs.videoCh}
		go fs.runDecode(ctx, fs.videoCmd, chunker, &fs.videoErr)
	}

	if fs.hasAudio {
		fs.audioCh = make(chan *types.AudioSample, 4)
		blockFrames := fs.sampleRate / fs.frameRate
		if blockFrames <= 0 {
			blockFrames = fs.sampleRate
		}
		fs.audioCmd = ffmpeg.NewCommandBuilder(cfg.FFmpegPath).
			HideBanner().
			Input(path).
			OutputArgs("-vn", "-f", "f32le", "-ar", strconv.Itoa(fs.sampleRate), "-ac", strconv.Itoa(fs.channels)).
			Output("pipe:1").
			Build()

		chunker := &audioChunker{
			channels:    fs.channels,
			sampleRate:  fs.sampleRate,
			blockFrames: blockFrames,
			out:         fs.audioCh,
		}
		go fs.runDecode(ctx, fs.audioCmd, chunker, &fs.audioErr)
	}

	return fs, nil
}

// runDecode streams cmd's stdout through w until the process exits, then
// closes w's output channel and records any terminal error.
func (fs *fileSource) runDecode(ctx context.Context, cmd *ffmpeg.Command, w chunkWriter, errOut *error) {
	stdin, done, err := cmd.StreamWithStdin(ctx, w)
	if err != nil {
		fs.mu.Lock()
		*errOut = err
		fs.mu.Unlock()
		w.closeChannel()
		return
	}
	_ = stdin.Close()

	err = <-done
	fs.mu.Lock()
	*errOut = err
	fs.mu.Unlock()
	w.closeChannel()
}

// chunkWriter is implemented by frameChunker and audioChunker: an io.Writer
// that also knows how to close its output channel once decoding ends.
type chunkWriter interface {
	Write(p []byte) (int, error)
	closeChannel()
}

type frameChunker struct {
	width, height int
	frameSize     int
	buf           []byte
	out           chan *types.Frame
}

func (c *frameChunker) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	for len(c.buf) >= c.frameSize {
		data := make([]byte, c.frameSize)
		copy(data, c.buf[:c.frameSize])
		c.buf = c.buf[c.frameSize:]
		c.out <- &types.Frame{TimestampUs: -1, Width: c.width, Height: c.height, Data: data}
	}
	return len(p), nil
}

func (c *frameChunker) closeChannel() { close(c.out) }

type audioChunker struct {
	channels    int
	sampleRate  int
	blockFrames int
	buf         []byte
	out         chan *types.AudioSample
}

func (c *audioChunker) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	bytesPerBlock := c.blockFrames * c.channels * 4
	for len(c.buf) >= bytesPerBlock {
		block := c.buf[:bytesPerBlock]
		c.buf = c.buf[bytesPerBlock:]

		planar := make([][]float32, c.channels)
		for ch := range planar {
			planar[ch] = make([]float32, c.blockFrames)
		}
		for i := 0; i < c.blockFrames; i++ {
			for ch := 0; ch < c.channels; ch++ {
				off := (i*c.channels + ch) * 4
				bits := binary.LittleEndian.Uint32(block[off : off+4])
				planar[ch][i] = math.Float32frombits(bits)
			}
		}
		c.out <- &types.AudioSample{
			TimestampUs: -1,
			SampleRate:  c.sampleRate,
			FrameCount:  c.blockFrames,
			Channels:    c.channels,
			Format:      types.AudioFormatPlanarF32,
			PlanarFloat: planar,
		}
	}
	return len(p), nil
}

func (c *audioChunker) closeChannel() { close(c.out) }

func (fs *fileSource) NextVideoFrame(ctx context.Context) (*types.Frame, bool, error) {
	if !fs.hasVideo {
		return nil, false, nil
	}
	select {
	case f, ok := <-fs.videoCh:
		if !ok {
			return nil, false, fs.terminalErr(&fs.videoErr)
		}
		return f, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (fs *fileSource) NextAudioSample(ctx context.Context) (*types.AudioSample, bool, error) {
	if !fs.hasAudio {
		return nil, false, nil
	}
	select {
	case a, ok := <-fs.audioCh:
		if !ok {
			return nil, false, fs.terminalErr(&fs.audioErr)
		}
		return a, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (fs *fileSource) terminalErr(which *error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if *which == nil {
		return nil
	}
	return types.NewError(types.KindInvalidInput, "decoding media file: "+(*which).Error())
}

// TotalFrames returns the probed duration's frame count for the video
// stream, or KindUnknownLength if the file carries no video or no duration
// was reported.
func (fs *fileSource) TotalFrames() (int, error) {
	if fs.totalFrames <= 0 {
		return 0, types.NewError(types.KindUnknownLength, "media file duration was not reported by the prober")
	}
	return fs.totalFrames, nil
}

// Close terminates both decode subprocesses. Safe to call once; it does not
// drain pending channel sends, so callers finished early should expect the
// decode goroutines to exit once Kill unblocks their pipe writes.
func (fs *fileSource) Close() error {
	fs.closeOnce.Do(func() {
		if fs.videoCmd != nil {
			_ = fs.videoCmd.Kill()
		}
		if fs.audioCmd != nil {
			_ = fs.audioCmd.Kill()
		}
	})
	return nil
}
