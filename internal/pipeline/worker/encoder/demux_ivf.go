package encoder

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/encodecore/encodecore/internal/pipeline/types"
)

// ivfDemuxer reads FFmpeg's "-f ivf" output into EncodedChunks, for the
// codec families MPEG-TS cannot carry here: VP8, VP9, AV1. IVF's fixed
// 32-byte file header plus a 12-byte-header-then-payload frame layout is
// small enough to read directly without a dedicated parsing library, the
// same judgment call as the webm package's hand-rolled EBML writer.
type ivfDemuxer struct {
	logger  *slog.Logger
	onChunk func(*types.EncodedChunk)

	pipeMu     sync.Mutex
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	done chan error

	keyframeDetect func(frame []byte) bool
}

func newIVFDemuxer(logger *slog.Logger, keyframeDetect func([]byte) bool, onChunk func(*types.EncodedChunk)) *ivfDemuxer {
	pr, pw := io.Pipe()
	d := &ivfDemuxer{
		logger:         logger,
		onChunk:        onChunk,
		pipeReader:     pr,
		pipeWriter:     pw,
		done:           make(chan error, 1),
		keyframeDetect: keyframeDetect,
	}
	go d.run()
	return d
}

func (d *ivfDemuxer) run() {
	defer close(d.done)

	var fileHeader [32]byte
	if _, err := io.ReadFull(d.pipeReader, fileHeader[:]); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
			d.done <- err
		}
		d.pipeReader.Close()
		return
	}
	timebaseNum := binary.LittleEndian.Uint32(fileHeader[16:20])
	timebaseDen := binary.LittleEndian.Uint32(fileHeader[20:24])
	if timebaseDen == 0 {
		timebaseDen = 1
	}

	var frameHeader [12]byte
	for {
		if _, err := io.ReadFull(d.pipeReader, frameHeader[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				d.done <- err
			}
			break
		}
		size := binary.LittleEndian.Uint32(frameHeader[0:4])
		timestampTicks := binary.LittleEndian.Uint64(frameHeader[4:12])

		payload := make([]byte, size)
		if _, err := io.ReadFull(d.pipeReader, payload); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				d.done <- err
			}
			break
		}

		typ := types.ChunkDelta
		if d.keyframeDetect == nil || d.keyframeDetect(payload) {
			typ = types.ChunkKey
		}
		timestampUs := int64(timestampTicks) * int64(timebaseNum) * 1_000_000 / int64(timebaseDen)
		d.onChunk(&types.EncodedChunk{Data: payload, Type: typ, TimestampUs: timestampUs})
	}
	d.pipeReader.Close()
}

func (d *ivfDemuxer) Write(p []byte) (int, error) {
	d.pipeMu.Lock()
	defer d.pipeMu.Unlock()
	return d.pipeWriter.Write(p)
}

func (d *ivfDemuxer) Close() error {
	d.pipeMu.Lock()
	d.pipeWriter.Close()
	d.pipeMu.Unlock()
	return <-d.done
}

func (d *ivfDemuxer) Kill() {
	d.pipeWriter.Close()
}
