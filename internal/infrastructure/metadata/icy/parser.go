// ABOUTME: ICY inline metadata demultiplexer, splitting audio from interleaved tag blocks
// ABOUTME: Stateless-per-stream state machine over InRun/InLength/InMeta per the icy-metaint contract
package icy

import (
	"bytes"
	"strings"

	"github.com/harper/httpstreaminput/internal/domain/tag"
)

// maxMetaBlock caps a malformed metadata block's accumulated size before
// it's discarded; real blocks are at most 255*16 = 4080 bytes.
const maxMetaBlock = 4096

type state int

const (
	stateInRun state = iota
	stateInLength
	stateInMeta
)

// Parser demultiplexes a byte stream arriving in the pattern
// "stride audio bytes, one length byte L, 16*L metadata bytes, repeat"
// into an audio substream and a sequence of parsed tags. It is
// stateless across streams: one Parser serves exactly one stream for
// its lifetime, from Start to the stream's close.
type Parser struct {
	stride  int
	state   state
	runLeft int // bytes remaining in the current audio run (InRun)
	metaLen int // total metadata bytes expected this block (InMeta)
	metaGot int // metadata bytes accumulated so far
	metaBuf bytes.Buffer

	pending   tag.Tag
	havePend  bool
	streamName string
}

// Active reports whether Start has been called on this parser.
func (p *Parser) Active() bool { return p.stride > 0 }

// Start begins demuxing with the given audio-byte stride between
// metadata blocks. Calling Start on an already-active parser is a
// no-op; metaint is latched once per stream.
func (p *Parser) Start(stride int) {
	if p.stride > 0 || stride <= 0 {
		return
	}
	p.stride = stride
	p.state = stateInRun
	p.runLeft = stride
}

// SetStreamName latches the icy-name/ice-name/x-audiocast-name header
// value so the next emitted tag carries it.
func (p *Parser) SetStreamName(name string) {
	p.streamName = name
}

// Data reports how many of the next leading bytes of a region of length
// limit belong to the current audio run. It is 0 while in InLength or
// InMeta. The caller alternates Data and Meta until limit bytes have
// been classified.
func (p *Parser) Data(limit int) int {
	if !p.Active() || p.state != stateInRun {
		return 0
	}
	n := p.runLeft
	if n > limit {
		n = limit
	}
	return n
}

// Advance tells the parser that n audio bytes (as returned by a prior
// Data call) have been consumed, transitioning InRun -> InLength when
// the run is exhausted.
func (p *Parser) Advance(n int) {
	p.runLeft -= n
	if p.runLeft <= 0 {
		p.runLeft = 0
		p.state = stateInLength
	}
}

// Meta consumes up to limit leading bytes of buf as metadata, either the
// single length byte (InLength) or accumulated block bytes (InMeta).
// It returns the number of bytes consumed. When a metadata block
// completes, it is parsed and stored for the next Tag() call, and the
// parser returns to InRun.
func (p *Parser) Meta(buf []byte, limit int) int {
	if !p.Active() || len(buf) == 0 || limit <= 0 {
		return 0
	}

	switch p.state {
	case stateInLength:
		l := int(buf[0])
		p.metaLen = l * 16
		p.metaGot = 0
		p.metaBuf.Reset()
		if p.metaLen == 0 {
			p.state = stateInRun
			p.runLeft = p.stride
		} else {
			p.state = stateInMeta
		}
		return 1

	case stateInMeta:
		remaining := p.metaLen - p.metaGot
		n := remaining
		if n > limit {
			n = limit
		}
		if n > len(buf) {
			n = len(buf)
		}
		if p.metaBuf.Len() < maxMetaBlock {
			room := maxMetaBlock - p.metaBuf.Len()
			w := n
			if w > room {
				w = room
			}
			p.metaBuf.Write(buf[:w])
		}
		p.metaGot += n
		if p.metaGot >= p.metaLen {
			p.finishBlock()
			p.state = stateInRun
			p.runLeft = p.stride
		}
		return n
	}

	return 0
}

// finishBlock parses the accumulated metadata text into a tag. Malformed
// blocks (no StreamTitle, unterminated quote) are discarded silently per
// the ProtocolError policy: the stream continues, nothing is surfaced.
func (p *Parser) finishBlock() {
	raw := strings.TrimRight(p.metaBuf.String(), "\x00")
	if raw == "" {
		return
	}

	title, ok := extractStreamTitle(raw)
	if !ok {
		return
	}

	t := tag.NewTitle(title)
	if p.streamName != "" {
		t = t.WithName(p.streamName)
	}
	p.pending = t
	p.havePend = true
}

// Tag returns the pending tag, if any, transferring ownership to the
// caller. A subsequent call returns (Tag{}, false) until another block
// completes.
func (p *Parser) Tag() (tag.Tag, bool) {
	if !p.havePend {
		return tag.Tag{}, false
	}
	p.havePend = false
	t := p.pending
	p.pending = tag.Tag{}
	return t, true
}

// extractStreamTitle pulls the StreamTitle='...'; value out of a
// semicolon-separated KEY='VALUE'; metadata block. Matching is ASCII
// case-insensitive on the key, per the ICY convention.
func extractStreamTitle(block string) (string, bool) {
	lower := strings.ToLower(block)
	const key = "streamtitle='"
	idx := strings.Index(lower, key)
	if idx < 0 {
		return "", false
	}
	start := idx + len(key)
	end := strings.Index(block[start:], "';")
	if end < 0 {
		// Missing terminator: malformed, discard the block.
		return "", false
	}
	return block[start : start+end], true
}
