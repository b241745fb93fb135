package echo

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Recorder keeps every payload a server received, in arrival order.
type Recorder struct {
	seq      atomic.Uint64
	payloads *xsync.MapOf[uint64, []byte]
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{payloads: xsync.NewMapOf[uint64, []byte]()}
}

func (r *Recorder) record(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	r.payloads.Store(r.seq.Add(1), cp)
}

// Count returns how many payloads have been received.
func (r *Recorder) Count() int {
	return r.payloads.Size()
}

// Payloads returns the received payloads ordered by arrival.
func (r *Recorder) Payloads() [][]byte {
	keys := make([]uint64, 0, r.payloads.Size())
	r.payloads.Range(func(k uint64, _ []byte) bool {
		keys = append(keys, k)
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if p, ok := r.payloads.Load(k); ok {
			out = append(out, p)
		}
	}
	return out
}
