package mp4

import (
	"bytes"
	"fmt"
	"io"
)

// seekableBuffer adapts bytes.Buffer to io.WriteSeeker, which the mediacommon
// fmp4/mp4 Marshal methods require even though our writes are always
// sequential.
type seekableBuffer struct {
	buf bytes.Buffer
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if int(s.pos) > s.buf.Len() {
		s.buf.Write(make([]byte, int(s.pos)-s.buf.Len()))
	}
	var n int
	var err error
	if int(s.pos) == s.buf.Len() {
		n, err = s.buf.Write(p)
	} else {
		b := s.buf.Bytes()
		n = copy(b[s.pos:], p)
		if n < len(p) {
			var m int
			m, err = s.buf.Write(p[n:])
			n += m
		}
	}
	s.pos += int64(n)
	return n, err
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.buf.Len()) + offset
	default:
		return 0, fmt.Errorf("mp4: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("mp4: negative seek position")
	}
	s.pos = newPos
	return newPos, nil
}

func (s *seekableBuffer) Bytes() []byte {
	return s.buf.Bytes()
}
