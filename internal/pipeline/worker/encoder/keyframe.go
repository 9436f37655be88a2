package encoder

import "github.com/bluenviron/mediacommon/v2/pkg/codecs/av1"

// isVP8Keyframe inspects the VP8 uncompressed data partition's frame tag:
// the low bit of the first byte is 0 for a key frame (RFC 6386 §9.1).
func isVP8Keyframe(data []byte) bool {
	return len(data) > 0 && data[0]&0x01 == 0
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

// isAV1Keyframe reports whether the temporal unit carries a sequence
// header OBU, which encoders emit only ahead of a key frame.
func isAV1Keyframe(data []byte) bool {
	var bs av1.Bitstream
	if err := bs.Unmarshal(data); err != nil {
		return false
	}
	for _, obu := range bs {
		if len(obu) == 0 {
			continue
		}
		if av1.OBUType((obu[0]>>3)&0x0F) == av1.OBUTypeSequenceHeader {
			return true
		}
	}
	return false
}
