package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/netprobe/internal/logger"
	"github.com/spf13/afero"
)

// Sink prints responses and optionally persists the raw bytes.
type Sink struct {
	out io.Writer
	fs  afero.Fs
	log *logger.Logger
	mu  sync.Mutex
}

// New creates a sink writing text to out and saved files to fs. A nil fs
// means the OS filesystem.
func New(out io.Writer, fs afero.Fs, l *logger.Logger) *Sink {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Sink{out: out, fs: fs, log: l}
}

// Report prints body as lossy UTF-8 and, when savePath is set, writes the
// raw bytes to that file. A failed save is logged and returned; the printed
// output is unaffected.
func (s *Sink) Report(body []byte, savePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.out, "Received response:\n%s\n", Lossy(body))

	if savePath == "" {
		return nil
	}

	if err := afero.WriteFile(s.fs, savePath, body, 0644); err != nil {
		s.log.Error(fmt.Sprintf("[sink] saving response to %s failed - %v", savePath, err))
		return fmt.Errorf("save response to %s: %w", savePath, err)
	}

	s.log.Info(fmt.Sprintf("Response saved to %s", savePath))
	return nil
}

// Lossy decodes b as UTF-8, replacing each maximal invalid subsequence
// with a single U+FFFD.
func Lossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			size = invalidPrefix(b)
		} else {
			sb.Write(b[:size])
		}
		b = b[size:]
	}
	return sb.String()
}

// invalidPrefix returns the length of the truncated sequence starting at
// b[0]: the lead byte plus every following byte that could still have
// continued it.
func invalidPrefix(b []byte) int {
	var need int
	lo, hi := byte(0x80), byte(0xBF)

	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1
	}

	n := 1
	for ; n <= need && n < len(b); n++ {
		if b[n] < lo || b[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return n
}
