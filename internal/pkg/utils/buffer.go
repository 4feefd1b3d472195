package utils

import (
	"strings"
	"sync"
)

const truncatedSuffix = "\n... (output truncated)"

// TruncateBuffer collects at most limit bytes of written data.
//
// Writes never fail, so buffer can be used as stdout and stderr of
// external tools that produce unbounded output.
type TruncateBuffer struct {
	buffer    strings.Builder
	limit     int
	truncated bool
	mutex     sync.Mutex
}

func NewTruncateBuffer(limit int) *TruncateBuffer {
	if limit <= 0 {
		limit = 64 * 1024
	}
	return &TruncateBuffer{limit: limit}
}

func (b *TruncateBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	s := fixUTF8String(b.buffer.String())
	if b.truncated {
		s += truncatedSuffix
	}
	return s
}

func (b *TruncateBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	l := len(p)
	if b.buffer.Len()+l > b.limit {
		p = p[:b.limit-b.buffer.Len()]
		b.truncated = true
	}
	if len(p) == 0 {
		return l, nil
	}
	if _, err := b.buffer.Write(p); err != nil {
		return 0, err
	}
	return l, nil
}

func fixUTF8String(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\u0000", "")
}
