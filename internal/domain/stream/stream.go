// ABOUTME: One HTTP transfer's consumer-visible state: offset, size, mime, pause, buffers, tag
// ABOUTME: Read/Seek/Close/Available/EOF/Tag/Check implement the blocking consumer contract
package stream

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/harper/httpstreaminput/internal/domain/streamerr"
	"github.com/harper/httpstreaminput/internal/domain/tag"
	"github.com/harper/httpstreaminput/internal/infrastructure/metadata/icy"
)

// High/low water marks (§5): MAX_BUFFERED is the pause threshold,
// RESUME_AT the resume threshold. The gap between them is the
// hysteresis that prevents rapid pause/resume flapping. These are the
// defaults; a caller of Open may override them per stream via
// Watermarks (see config.Config.Buffering).
const (
	MaxBuffered = 512 * 1024
	ResumeAt    = 384 * 1024
)

// Watermarks overrides the pause/resume thresholds for one stream.
type Watermarks struct {
	MaxBuffered int
	ResumeAt    int
}

// DefaultWatermarks returns the §5 defaults.
func DefaultWatermarks() Watermarks {
	return Watermarks{MaxBuffered: MaxBuffered, ResumeAt: ResumeAt}
}

// sanitize fills in defaults for any zero or nonsensical field: a
// non-positive MaxBuffered, or a ResumeAt that isn't strictly below it
// (which would defeat the hysteresis entirely).
func (w Watermarks) sanitize() Watermarks {
	if w.MaxBuffered <= 0 {
		w.MaxBuffered = MaxBuffered
	}
	if w.ResumeAt <= 0 || w.ResumeAt >= w.MaxBuffered {
		w.ResumeAt = ResumeAt
		if w.ResumeAt >= w.MaxBuffered {
			w.ResumeAt = w.MaxBuffered / 2
		}
	}
	return w
}

// Controller is the narrow slice of the reactor a Stream calls into: the
// cross-thread trampoline for registering, aborting, and resuming an
// HTTP transfer. Streams never touch an HTTP client directly; only the
// reactor goroutine does, per §5's single-owner rule.
type Controller interface {
	// Register starts (or restarts, on seek) the HTTP transfer for s at
	// the given absolute byte offset. It returns synchronously once the
	// transfer has been handed to the reactor; SetupError propagates
	// from here. It does not wait for headers.
	Register(s *Stream, rangeFrom int64) error

	// Abort tears down s's live transfer, if any, and blocks until the
	// reactor has unregistered it. Safe to call with no transfer live.
	Abort(s *Stream)

	// RequestResume asks the reactor to clear s's pause and resume
	// delivering bytes, if s is currently paused. Fire-and-forget.
	RequestResume(s *Stream)
}

// Stream is the live representation of one HTTP transfer (§3).
type Stream struct {
	id  uuid.UUID
	uri string

	mu   *sync.Mutex
	cond *sync.Cond
	ctrl Controller

	// Fields touched under mu by any thread.
	offset   int64
	size     int64 // -1 if unknown
	mime     string
	seekable bool
	ready    bool
	closed   bool
	paused   bool

	transferActive bool // analogue of easy_handle != nil
	buffers        queue
	parser         icy.Parser
	metaName       string

	watermarks Watermarks

	pendingTag     tag.Tag
	havePendingTag bool
	err            error
}

// Open validates the scheme and, if it's one this subsystem handles,
// builds a Stream and registers its first HTTP transfer with ctrl. It
// returns immediately; the stream is not Ready yet.
//
// mu is the mutex the caller's scheduler owns for this stream; Open
// derives the condition variable from it rather than taking both as
// parameters, since sync.Cond is only ever constructed from its lock.
//
// wm overrides the §5 pause/resume thresholds for this stream; pass
// DefaultWatermarks() to use the spec defaults.
func Open(uri string, mu *sync.Mutex, ctrl Controller, wm Watermarks) (*Stream, error) {
	if !strings.HasPrefix(uri, "http://") {
		return nil, streamerr.ErrNotMine
	}

	s := &Stream{
		id:         uuid.New(),
		uri:        uri,
		mu:         mu,
		cond:       sync.NewCond(mu),
		ctrl:       ctrl,
		size:       -1,
		watermarks: wm.sanitize(),
	}

	if err := ctrl.Register(s, 0); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) ID() uuid.UUID { return s.id }
func (s *Stream) URI() string   { return s.uri }

// Read blocks while the transfer is live and no bytes are buffered yet.
// It returns the number of audio bytes copied into dst; 0 means
// permanent EOF or a pending error (call Check to retrieve it).
func (s *Stream) Read(dst []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		for s.transferActive && s.buffers.empty() && s.err == nil {
			s.cond.Wait()
		}

		if s.err != nil {
			return 0
		}

		n := s.drainLocked(dst)
		s.offset += int64(n)

		if s.paused && s.buffers.size() < s.watermarks.ResumeAt {
			s.paused = false
			s.ctrl.RequestResume(s)
		}

		// Buffered bytes that were all metadata yield no audio; wait for
		// more rather than returning 0 while the transfer is still live.
		if n > 0 || !s.transferActive || len(dst) == 0 {
			return n
		}
	}
}

// drainLocked pulls bytes from the front of the buffer queue into dst,
// routing them through the metadata parser when ICY metadata is active.
// Must be called with mu held.
func (s *Stream) drainLocked(dst []byte) int {
	produced := 0
	for produced < len(dst) {
		front := s.buffers.peekFront()
		if len(front) == 0 {
			break
		}

		if !s.parser.Active() {
			n := copy(dst[produced:], front)
			s.buffers.advance(n)
			produced += n
			continue
		}

		if n := s.parser.Data(minInt(len(front), len(dst)-produced)); n > 0 {
			copy(dst[produced:produced+n], front[:n])
			s.parser.Advance(n)
			s.buffers.advance(n)
			produced += n
			continue
		}

		n := s.parser.Meta(front, len(front))
		if n == 0 {
			break
		}
		s.buffers.advance(n)
		if t, ok := s.parser.Tag(); ok {
			s.pendingTag = t
			s.havePendingTag = true
		}
	}
	return produced
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Seek implements §4.3's seek contract: fast-forward within already
// buffered bytes when possible (only reachable when Seekable, which
// implies metadata is inactive, so buffered bytes are plain audio);
// otherwise abort and re-register at the target offset.
func (s *Stream) Seek(offset int64, whence int) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return &streamerr.SeekError{Reason: "stream not ready"}
	}

	var target int64
	switch whence {
	case SeekStart:
		target = offset
	case SeekCurrent:
		target = s.offset + offset
	case SeekEnd:
		if s.size < 0 {
			s.mu.Unlock()
			return &streamerr.SeekError{Reason: "size unknown"}
		}
		target = s.size + offset
	}
	if target < 0 {
		s.mu.Unlock()
		return &streamerr.SeekError{Reason: "negative offset"}
	}

	if target == s.offset {
		s.mu.Unlock()
		return nil
	}

	if !s.seekable {
		s.mu.Unlock()
		return &streamerr.SeekError{Reason: "stream not seekable"}
	}

	if target > s.offset {
		buffered := s.offset + int64(s.buffers.size())
		if target <= buffered {
			s.buffers.advance(int(target - s.offset))
			s.offset = target
			s.mu.Unlock()
			return nil
		}
	}

	s.mu.Unlock()
	s.ctrl.Abort(s)

	s.mu.Lock()
	s.buffers.clear()
	s.offset = target
	if s.size >= 0 && target >= s.size {
		// Simulated-empty seek at or past end: success, no data, immediate
		// EOF, rather than surfacing an error.
		s.ready = true
		s.transferActive = false
		s.cond.Broadcast()
		s.mu.Unlock()
		return nil
	}
	s.ready = false
	s.mu.Unlock()

	if err := s.ctrl.Register(s, target); err != nil {
		return err
	}

	s.mu.Lock()
	for !s.ready {
		s.cond.Wait()
	}
	err := s.err
	s.mu.Unlock()
	return err
}

// Seek whence values, mirroring io.Seeker's without importing io here
// so this package stays free of I/O concerns.
const (
	SeekStart = iota
	SeekCurrent
	SeekEnd
)

// Close aborts any live transfer and marks the stream closed; safe to
// call from any thread, any number of times.
func (s *Stream) Close() {
	s.ctrl.Abort(s)

	s.mu.Lock()
	s.closed = true
	s.buffers.clear()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Available reports whether a read would return data or a terminal
// condition without a long block: an error pending, the transfer ended,
// or at least one chunk buffered.
func (s *Stream) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil || !s.transferActive || !s.buffers.empty()
}

// EOF reports permanent end of stream: the transfer has ended and the
// queue is drained. Once true, it remains true.
func (s *Stream) EOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.transferActive && s.buffers.empty()
}

// Tag returns the pending tag, transferring ownership to the caller, or
// (Tag{}, false) if the parser hasn't emitted one since the last call.
func (s *Stream) Tag() (tag.Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.havePendingTag {
		return tag.Tag{}, false
	}
	s.havePendingTag = false
	t := s.pendingTag
	s.pendingTag = tag.Tag{}
	return t, true
}

// Check surfaces and clears a latched error, if any.
func (s *Stream) Check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

// Snapshot fields exposed for the debug server and tests.
func (s *Stream) Offset() int64  { return s.locked(func() int64 { return s.offset }) }
func (s *Stream) Size() int64    { return s.locked(func() int64 { return s.size }) }
func (s *Stream) MIME() string   { return s.lockedStr(func() string { return s.mime }) }
func (s *Stream) Seekable() bool { return s.lockedBool(func() bool { return s.seekable }) }
func (s *Stream) Paused() bool   { return s.lockedBool(func() bool { return s.paused }) }
func (s *Stream) Buffered() int  { return int(s.locked(func() int64 { return int64(s.buffers.size()) })) }

// Watermarks returns the pause/resume thresholds this stream was
// opened with.
func (s *Stream) Watermarks() Watermarks { return s.watermarks }

func (s *Stream) locked(f func() int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f()
}
func (s *Stream) lockedStr(f func() string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f()
}
func (s *Stream) lockedBool(f func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f()
}

// --- Reactor-thread mutators below: invoked only by the reactor's pump
// goroutine for this stream's transfer. They still acquire mu, since Go
// gives us no cheaper way to guarantee visibility to consumer threads;
// the "reactor-only" discipline from the original design is preserved
// at the call-site level rather than at the lock level. ---

// BeginTransfer marks a fresh or restarted HTTP transfer as live,
// clearing any stale error/ready/pause state from a prior attempt.
func (s *Stream) BeginTransfer() {
	s.mu.Lock()
	s.transferActive = true
	s.ready = false
	s.paused = false
	s.err = nil
	s.mu.Unlock()
}

// ApplyHeaderLine implements the header callback (§4.5): parses one
// "Name: Value" line and updates the fields it recognises. Unknown
// names are ignored; comparisons are ASCII case-insensitive.
func (s *Stream) ApplyHeaderLine(line string) {
	name, value, ok := splitHeaderLine(line)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToLower(name) {
	case "accept-ranges":
		if !s.parser.Active() {
			s.seekable = true
		}
	case "content-length":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			s.size = s.offset + n
		}
	case "content-type":
		s.mime = value
	case "icy-name", "ice-name", "x-audiocast-name":
		s.metaName = value
		s.parser.SetStreamName(value)
		s.pendingTag = tag.NewTitle("").WithName(value)
		s.havePendingTag = true
	case "icy-metaint":
		if k, err := strconv.Atoi(value); err == nil && k > 0 && !s.parser.Active() {
			s.parser.Start(k)
			s.seekable = false
		}
	}
}

// splitHeaderLine separates a "Name: Value" line. The value is sliced
// against its own span, idx+1..len(line), never against the name's
// length, so a short name never truncates a long value.
func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	return name, value, true
}

// HeadersProcessed marks the stream ready once response headers have
// been handled, satisfying "ready ⇒ error present ∨ headers processed".
func (s *Stream) HeadersProcessed() {
	s.mu.Lock()
	s.ready = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// OnWrite appends a write-callback's bytes to the buffer queue, or
// requests a pause without copying if doing so would exceed this
// stream's MaxBuffered watermark. It returns true when the caller (the
// reactor's pump) should stop reading from the transfer body until
// resumed.
func (s *Stream) OnWrite(p []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	if s.buffers.size()+len(p) > s.watermarks.MaxBuffered {
		s.paused = true
		return true
	}

	s.buffers.push(p)
	s.ready = true
	s.cond.Broadcast()
	return false
}

// Complete marks the transfer ended with no error (natural EOF from the
// server) and wakes any blocked reader.
func (s *Stream) Complete() {
	s.mu.Lock()
	s.transferActive = false
	s.ready = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// SetError latches a failure, ends the transfer, and wakes any blocked
// reader or seeker. Used for TransportError and HTTPStatusError.
func (s *Stream) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.transferActive = false
	s.ready = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// IsClosed reports whether Close has been called, for the reactor's
// teardown path to skip redundant work.
func (s *Stream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MetaName returns the latched icy-name/ice-name/x-audiocast-name value.
func (s *Stream) MetaName() string { return s.lockedStr(func() string { return s.metaName }) }
