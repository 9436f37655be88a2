package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// tsDemuxer turns an FFmpeg MPEG-TS output stream into EncodedChunks, for
// the codec families MPEG-TS can carry here: H.264, H.265, AAC, Opus.
// Narrowed to this pipeline's codec set (no AC-3/E-AC-3/MP3) and
// emitting types.EncodedChunk instead of raw samples.
type tsDemuxer struct {
	logger *slog.Logger
	onChunk func(*types.EncodedChunk)

	reader *mpegts.Reader

	pipeMu     sync.Mutex
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	initOnce sync.Once
	initErr  error
	initDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newTSDemuxer(logger *slog.Logger, onChunk func(*types.EncodedChunk)) *tsDemuxer {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	d := &tsDemuxer{
		logger:     logger,
		onChunk:    onChunk,
		pipeReader: pr,
		pipeWriter: pw,
		initDone:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	go d.run()
	return d
}

func (d *tsDemuxer) run() {
	defer func() {
		d.pipeReader.Close()
		close(d.initDone)
	}()

	d.reader = &mpegts.Reader{R: d.pipeReader}
	if err := d.reader.Initialize(); err != nil {
		d.initOnce.Do(func() {
			d.initErr = fmt.Errorf("initializing mpegts reader: %w", err)
		})
		return
	}

	for _, track := range d.reader.Tracks() {
		d.setupTrack(track)
	}
	d.initOnce.Do(func() {})

	d.reader.OnDecodeError(func(err error) {
		d.logger.Debug("mpegts decode error", slog.String("error", err.Error()))
	})

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if err := d.reader.Read(); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
					d.logger.Debug("mpegts read error, stopping", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

func (d *tsDemuxer) setupTrack(track *mpegts.Track) {
	switch track.Codec.(type) {
	case *mpegts.CodecH264:
		d.reader.OnDataH264(track, func(pts, _ int64, au [][]byte) error {
			return d.emitVideo(pts, au, h264.IsRandomAccess(au))
		})
	case *mpegts.CodecH265:
		d.reader.OnDataH265(track, func(pts, _ int64, au [][]byte) error {
			return d.emitVideo(pts, au, h265.IsRandomAccess(au))
		})
	case *mpegts.CodecMPEG4Audio:
		d.reader.OnDataMPEG4Audio(track, func(pts int64, aus [][]byte) error {
			for _, au := range aus {
				d.emitAudio(pts, au)
			}
			return nil
		})
	case *mpegts.CodecOpus:
		d.reader.OnDataOpus(track, func(pts int64, packets [][]byte) error {
			for _, p := range packets {
				d.emitAudio(pts, p)
			}
			return nil
		})
	default:
		d.logger.Debug("ignoring unsupported mpegts track", slog.Uint64("pid", uint64(track.PID)))
	}
}

func (d *tsDemuxer) emitVideo(pts int64, au [][]byte, isKeyframe bool) error {
	if len(au) == 0 {
		return nil
	}
	annexB, err := h264.AnnexB(au).Marshal()
	if err != nil || len(annexB) == 0 {
		return nil
	}
	typ := types.ChunkDelta
	if isKeyframe {
		typ = types.ChunkKey
	}
	d.onChunk(&types.EncodedChunk{Data: annexB, Type: typ, TimestampUs: pts * 1_000_000 / 90_000})
	return nil
}

func (d *tsDemuxer) emitAudio(pts int64, data []byte) {
	if len(data) == 0 {
		return
	}
	d.onChunk(&types.EncodedChunk{Data: data, Type: types.ChunkKey, TimestampUs: pts * 1_000_000 / 90_000})
}

// Write feeds raw MPEG-TS bytes into the demuxer.
func (d *tsDemuxer) Write(p []byte) (int, error) {
	d.pipeMu.Lock()
	defer d.pipeMu.Unlock()
	return d.pipeWriter.Write(p)
}

// Close signals end of stream and waits for the reader goroutine to drain.
func (d *tsDemuxer) Close() error {
	d.pipeMu.Lock()
	d.pipeWriter.Close()
	d.pipeMu.Unlock()
	<-d.initDone
	return d.initErr
}

// Kill stops the demuxer immediately without waiting for drain, for cancel.
func (d *tsDemuxer) Kill() {
	d.cancel()
	d.pipeWriter.Close()
}
