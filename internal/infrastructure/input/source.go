// ABOUTME: Thin consumer-facing facade over Stream+Reactor: the surface the decoder uses
// ABOUTME: Adapts Stream's bytes-or-zero Read contract to Go's io.Reader/io.Seeker/io.Closer
package input

import (
	"io"
	"sync"

	"github.com/harper/httpstreaminput/internal/domain/streamerr"
	"github.com/harper/httpstreaminput/internal/domain/stream"
	"github.com/harper/httpstreaminput/internal/domain/tag"
)

// Controller is the reactor surface a Source needs; reactor.Reactor
// satisfies it. Kept as an interface here so tests can fake the
// reactor without spinning up real HTTP transfers.
type Controller = stream.Controller

// Source is the consumer API of §4.6: open, read, seek, close,
// available, eof, tag, check. It wraps one Stream and owns the mutex
// the stream blocks on.
type Source struct {
	mu sync.Mutex
	s  *stream.Stream
}

// Open validates the URI and, if it's http://, starts a transfer on
// ctrl. Returns streamerr.ErrNotMine (check with errors.Is) for any
// other scheme, so a caller trying several input plugins in turn can
// move on to the next one.
//
// wm overrides this stream's §5 pause/resume watermarks; pass
// stream.DefaultWatermarks() for the spec defaults.
func Open(uri string, ctrl Controller, wm stream.Watermarks) (*Source, error) {
	src := &Source{}
	s, err := stream.Open(uri, &src.mu, ctrl, wm)
	if err != nil {
		return nil, err
	}
	src.s = s
	return src, nil
}

// Read implements io.Reader. Stream.Read returns 0 for both permanent
// EOF and a latched error; Read here disambiguates by checking for a
// pending error and otherwise reporting io.EOF.
func (src *Source) Read(p []byte) (int, error) {
	n := src.s.Read(p)
	if n > 0 {
		return n, nil
	}
	if err := src.s.Check(); err != nil {
		return 0, err
	}
	return 0, io.EOF
}

// Seek implements io.Seeker over Stream.Seek's SeekError-returning
// contract.
func (src *Source) Seek(offset int64, whence int) (int64, error) {
	var sw int
	switch whence {
	case io.SeekStart:
		sw = stream.SeekStart
	case io.SeekCurrent:
		sw = stream.SeekCurrent
	case io.SeekEnd:
		sw = stream.SeekEnd
	default:
		return 0, &streamerr.SeekError{Reason: "unknown whence"}
	}

	if err := src.s.Seek(offset, sw); err != nil {
		return 0, err
	}
	return src.s.Offset(), nil
}

// Close implements io.Closer.
func (src *Source) Close() error {
	src.s.Close()
	return nil
}

// Available reports whether a read would return data or a terminal
// condition without blocking long.
func (src *Source) Available() bool { return src.s.Available() }

// EOF reports permanent end of stream.
func (src *Source) EOF() bool { return src.s.EOF() }

// Tag returns the pending tag, if the parser has emitted one since the
// last call.
func (src *Source) Tag() (tag.Tag, bool) { return src.s.Tag() }

// Check surfaces and clears a latched error.
func (src *Source) Check() error { return src.s.Check() }

// MIME returns the advertised content type, if any.
func (src *Source) MIME() string { return src.s.MIME() }

// Size returns the advertised content length, or -1 if unknown.
func (src *Source) Size() int64 { return src.s.Size() }

// Seekable reports whether byte-range seeking is currently possible.
func (src *Source) Seekable() bool { return src.s.Seekable() }
