// ABOUTME: Tests for the ICY inline metadata demultiplexer state machine
package icy

import "testing"

// feed pushes an interleaved buffer through the parser exactly the way
// the stream's read path does: alternate Data/Advance for audio runs
// and Meta for length/metadata bytes, collecting the audio-only bytes
// and any emitted tags.
func feed(p *Parser, input []byte) (audio []byte, tags []string) {
	i := 0
	for i < len(input) {
		if n := p.Data(len(input) - i); n > 0 {
			audio = append(audio, input[i:i+n]...)
			p.Advance(n)
			i += n
			continue
		}
		n := p.Meta(input[i:], len(input)-i)
		if n == 0 {
			break
		}
		i += n
		if t, ok := p.Tag(); ok {
			tags = append(tags, t.Title())
		}
	}
	return audio, tags
}

func TestParser_RoundTrip(t *testing.T) {
	var p Parser
	p.Start(4)

	block := BuildBlock("StreamTitle='hi';")
	input := append([]byte("AAAA"), block...)
	input = append(input, []byte("BBBB")...)

	audio, tags := feed(&p, input)

	if string(audio) != "AAAABBBB" {
		t.Errorf("expected AAAABBBB, got %q", audio)
	}
	if len(tags) != 1 || tags[0] != "hi" {
		t.Errorf("expected tag [hi], got %v", tags)
	}
}

func TestParser_EmptyBlockProducesNoTag(t *testing.T) {
	var p Parser
	p.Start(4)

	input := append([]byte("AAAA"), byte(0x00))
	input = append(input, []byte("BBBB")...)

	audio, tags := feed(&p, input)

	if string(audio) != "AAAABBBB" {
		t.Errorf("expected AAAABBBB, got %q", audio)
	}
	if len(tags) != 0 {
		t.Errorf("expected no tags, got %v", tags)
	}
}

func TestParser_MalformedBlockDiscardedStreamContinues(t *testing.T) {
	var p Parser
	p.Start(4)

	// Missing closing quote/semicolon: malformed.
	bad := []byte("StreamTitle='oops")
	block := append([]byte{byte((len(bad) + 15) / 16)}, bad...)
	for len(block)%16 != 1 {
		block = append(block, 0x00)
	}

	input := append([]byte("AAAA"), block...)
	input = append(input, []byte("BBBB")...)

	audio, tags := feed(&p, input)

	if string(audio) != "AAAABBBB" {
		t.Errorf("expected AAAABBBB even with malformed metadata, got %q", audio)
	}
	if len(tags) != 0 {
		t.Errorf("expected no tags from malformed block, got %v", tags)
	}
}

func TestParser_MultipleBlocksInOrder(t *testing.T) {
	var p Parser
	p.Start(2)

	input := []byte("AA")
	input = append(input, BuildBlock("StreamTitle='one';")...)
	input = append(input, []byte("BB")...)
	input = append(input, BuildBlock("StreamTitle='two';")...)
	input = append(input, []byte("CC")...)

	audio, tags := feed(&p, input)

	if string(audio) != "AABBCC" {
		t.Errorf("expected AABBCC, got %q", audio)
	}
	if len(tags) != 2 || tags[0] != "one" || tags[1] != "two" {
		t.Errorf("expected [one two], got %v", tags)
	}
}

func TestParser_StreamNameLatchedOntoTag(t *testing.T) {
	var p Parser
	p.Start(4)
	p.SetStreamName("My Station")

	input := append([]byte("AAAA"), BuildBlock("StreamTitle='song';")...)

	i := 0
	var got string
	for i < len(input) {
		if n := p.Data(len(input) - i); n > 0 {
			p.Advance(n)
			i += n
			continue
		}
		n := p.Meta(input[i:], len(input)-i)
		i += n
		if t, ok := p.Tag(); ok {
			got = t.Name()
		}
	}

	if got != "My Station" {
		t.Errorf("expected tag name 'My Station', got %q", got)
	}
}
