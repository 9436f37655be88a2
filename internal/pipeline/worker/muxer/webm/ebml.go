// Package webm implements the Muxer Driver's WebM backend as a
// hand-rolled EBML/Matroska writer, since no maintained Go library
// covers EBML muxing: a low-level element writer (this file) with a
// WebM-specific muxer (muxer.go) layered on top.
package webm

import (
	"bytes"
	"encoding/binary"
	"math"
)

// EBML element IDs used by the muxer. Matroska assigns IDs with their
// leading-bit length marker baked in, so these are written verbatim as
// big-endian bytes rather than through writeVarInt.
const (
	idEBMLHeader = 0x1A45DFA3
	idSegment    = 0x18538067
	idInfo       = 0x1549A966
	idTracks     = 0x1654AE6B
	idCluster    = 0x1F43B675
	idTimecode   = 0xE7
	idSimpleBlock = 0xA3

	idTimecodeScale = 0x2AD7B1
	idMuxingApp     = 0x4D80
	idWritingApp    = 0x5741
	idDuration      = 0x4489

	idTrackEntry  = 0xAE
	idTrackNumber = 0xD7
	idTrackUID    = 0x73C5
	idTrackType   = 0x83
	idCodecID     = 0x86
	idVideo       = 0xE0
	idAudio       = 0xE1
	idPixelWidth  = 0xB0
	idPixelHeight = 0xBA
	idSamplingFrequency = 0xB5
	idChannels          = 0x9F

	trackTypeVideo = 0x01
	trackTypeAudio = 0x02
)

// writeEBMLID writes an element ID using the minimum byte count that the
// Matroska spec's length-marker-in-first-byte scheme implies for the value.
func writeEBMLID(w *bytes.Buffer, id uint32) {
	switch {
	case id <= 0xFF:
		w.WriteByte(byte(id))
	case id <= 0xFFFF:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(id))
		w.Write(b[:])
	case id <= 0xFFFFFF:
		w.Write([]byte{byte(id >> 16), byte(id >> 8), byte(id)})
	default:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], id)
		w.Write(b[:])
	}
}

// writeVarInt encodes n as an EBML variable-length size/track-number field.
func writeVarInt(w *bytes.Buffer, n uint64) {
	switch {
	case n < 1<<7-1:
		w.WriteByte(byte(n) | 0x80)
	case n < 1<<14-1:
		w.WriteByte(byte(n>>8) | 0x40)
		w.WriteByte(byte(n))
	case n < 1<<21-1:
		w.WriteByte(byte(n>>16) | 0x20)
		w.WriteByte(byte(n >> 8))
		w.WriteByte(byte(n))
	case n < 1<<28-1:
		w.WriteByte(byte(n>>24) | 0x10)
		w.WriteByte(byte(n >> 16))
		w.WriteByte(byte(n >> 8))
		w.WriteByte(byte(n))
	default:
		w.WriteByte(byte(n>>32) | 0x08)
		w.WriteByte(byte(n >> 24))
		w.WriteByte(byte(n >> 16))
		w.WriteByte(byte(n >> 8))
		w.WriteByte(byte(n))
	}
}

// writeElement writes a complete ID+size+payload EBML element.
func writeElement(w *bytes.Buffer, id uint32, data []byte) {
	writeEBMLID(w, id)
	writeVarInt(w, uint64(len(data)))
	w.Write(data)
}

// unknownSizeElement writes an element header whose size is the Matroska
// "unknown" sentinel (all-ones within the size-marker's bit width), used for
// Segment and Cluster so they can be closed implicitly by the next sibling
// element — the streaming-friendly layout this muxer always uses.
func unknownSizeElement(w *bytes.Buffer, id uint32) {
	writeEBMLID(w, id)
	w.Write([]byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
}

// encodeUint trims n to its minimal big-endian byte representation.
func encodeUint(n uint64) []byte {
	if n == 0 {
		return []byte{0}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

// encodeFloat64 encodes f as a big-endian IEEE 754 double, as Matroska's
// SamplingFrequency element requires.
func encodeFloat64(f float64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	return buf[:]
}
