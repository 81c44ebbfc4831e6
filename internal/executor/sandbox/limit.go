package sandbox

import (
	"bytes"
	"errors"
)

// errOutputLimit is returned by cappedWriter once the stream budget is
// spent. The interpreter converts it to a RuntimeFailure at the print site.
var errOutputLimit = errors.New("output limit exceeded")

// cappedWriter buffers snippet output up to a fixed number of bytes. The
// bytes that fit are kept — a snippet that overflows the cap still returns
// everything it printed before the cut, consistent with the partial-output
// rule for every other failure mode.
type cappedWriter struct {
	buf      bytes.Buffer
	limit    int
	exceeded bool
}

func newCappedWriter(limit int) *cappedWriter {
	return &cappedWriter{limit: limit}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if w.exceeded {
		return 0, errOutputLimit
	}
	remain := w.limit - w.buf.Len()
	if len(p) <= remain {
		return w.buf.Write(p)
	}
	if remain > 0 {
		w.buf.Write(p[:remain])
	}
	w.exceeded = true
	return remain, errOutputLimit
}

func (w *cappedWriter) String() string { return w.buf.String() }
