package mp4

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/av1"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// dataToAccessUnit splits Annex-B-framed H.264/H.265 data (as produced by the
// worker/encoder demux stage) back into individual NAL units. Data lacking a
// start code is treated as a single already-split NAL unit.
func dataToAccessUnit(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x00 &&
		(data[2] == 0x01 || (data[2] == 0x00 && data[3] == 0x01)) {
		var au h264.AnnexB
		if err := au.Unmarshal(data); err != nil {
			return [][]byte{data}
		}
		return au
	}
	return [][]byte{data}
}

// dataToOBUs splits an AV1 temporal unit into its constituent OBUs.
func dataToOBUs(data []byte) [][]byte {
	var bs av1.Bitstream
	if err := bs.Unmarshal(data); err != nil {
		return [][]byte{data}
	}
	return bs
}

// extractADTSFrames strips ADTS headers from AAC data, returning the raw
// (headerless) frames fmp4.Sample.Payload expects.
func extractADTSFrames(data []byte) [][]byte {
	var frames [][]byte
	offset := 0
	for offset+7 <= len(data) {
		if data[offset] != 0xFF || (data[offset+1]&0xF0) != 0xF0 {
			offset++
			continue
		}
		protectionAbsent := (data[offset+1] & 0x01) != 0
		headerSize := 7
		if !protectionAbsent {
			headerSize = 9
		}
		frameLen := int(data[offset+3]&0x03)<<11 |
			int(data[offset+4])<<3 |
			int(data[offset+5]>>5)
		if frameLen < headerSize || offset+frameLen > len(data) {
			break
		}
		if raw := data[offset+headerSize : offset+frameLen]; len(raw) > 0 {
			frames = append(frames, raw)
		}
		offset += frameLen
	}
	return frames
}

// extractRawAudio returns data with any ADTS framing removed.
func extractRawAudio(data []byte) []byte {
	if len(data) >= 7 && data[0] == 0xFF && (data[1]&0xF0) == 0xF0 {
		if frames := extractADTSFrames(data); len(frames) > 0 {
			return frames[0]
		}
	}
	return data
}

// isVP9Keyframe inspects the VP9 uncompressed frame header's frame marker,
// profile and show_existing_frame bits.
func isVP9Keyframe(data []byte) bool {
	if len(data) < 1 {
		return false
	}
	if (data[0]>>6)&0x03 != 0x02 {
		return false
	}
	if (data[0]>>4)&0x03 == 3 {
		return data[0]&0x08 == 0
	}
	return data[0]&0x04 == 0
}
