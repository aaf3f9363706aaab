package llm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
)

// SSEEvent represents a single Server-Sent Event
type SSEEvent struct {
	Event string // Event type, empty if not specified
	Data  []byte // Concatenated data lines
	ID    string
}

// SSEParser parses Server-Sent Events streams as sent by all three vendors
type SSEParser struct {
	reader    *bufio.Reader
	buffer    bytes.Buffer
	eventType string
	eventID   string
}

// NewSSEParser creates a new SSE parser
func NewSSEParser(reader io.Reader) *SSEParser {
	return &SSEParser{reader: bufio.NewReader(reader)}
}

// NextEvent reads the next event from the stream.
// Returns io.EOF when the stream is complete and io.ErrUnexpectedEOF
// if it ends mid-event.
func (p *SSEParser) NextEvent() (SSEEvent, error) {
	for {
		line, err := p.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				// Last line without a newline still counts
				p.parseLine(bytes.TrimSuffix(line, []byte{'\r'}))
			}
			if p.pending() {
				return SSEEvent{}, fmt.Errorf("stream ended mid-event: %w", io.ErrUnexpectedEOF)
			}
			return SSEEvent{}, err
		}

		line = bytes.TrimSuffix(line, []byte{'\n'})
		line = bytes.TrimSuffix(line, []byte{'\r'})

		// Blank line dispatches the event
		if len(line) == 0 {
			if !p.pending() {
				continue
			}
			event := SSEEvent{
				Event: p.eventType,
				Data:  bytes.Clone(p.buffer.Bytes()),
				ID:    p.eventID,
			}
			p.reset()
			return event, nil
		}

		p.parseLine(line)
	}
}

// Events iterates over all events until EOF or the first error
func (p *SSEParser) Events() iter.Seq2[SSEEvent, error] {
	return func(yield func(SSEEvent, error) bool) {
		for {
			event, err := p.NextEvent()
			if err == io.EOF {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

func (p *SSEParser) parseLine(line []byte) {
	// Comments start with ':'
	if line[0] == ':' {
		return
	}

	field, value, found := bytes.Cut(line, []byte{':'})
	if !found {
		return
	}
	value = bytes.TrimPrefix(value, []byte{' '})

	switch string(field) {
	case "event":
		p.eventType = string(value)
	case "data":
		if p.buffer.Len() > 0 {
			p.buffer.WriteByte('\n')
		}
		p.buffer.Write(value)
	case "id":
		p.eventID = string(value)
	}
}

func (p *SSEParser) pending() bool {
	return p.buffer.Len() > 0 || p.eventType != ""
}

func (p *SSEParser) reset() {
	p.buffer.Reset()
	p.eventType = ""
	p.eventID = ""
}

// IsSSEDone checks if the SSE data is the OpenAI [DONE] marker
func IsSSEDone(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]"))
}
