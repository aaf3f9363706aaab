package llm

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEParser_Events(t *testing.T) {
	input := ": keep-alive\n" +
		"event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
		"data: line1\r\ndata: line2\r\n\r\n" +
		"data: [DONE]\n\n"

	var events []SSEEvent
	for event, err := range NewSSEParser(strings.NewReader(input)).Events() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		events = append(events, event)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Event != "message_start" || string(events[0].Data) != `{"type":"message_start"}` {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if string(events[1].Data) != "line1\nline2" {
		t.Errorf("expected joined data lines, got %q", events[1].Data)
	}
	if !IsSSEDone(events[2].Data) {
		t.Error("expected [DONE] marker")
	}
}

func TestSSEParser_DataSurvivesNextEvent(t *testing.T) {
	parser := NewSSEParser(strings.NewReader("data: first\n\ndata: second\n\n"))

	first, err := parser.NextEvent()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := parser.NextEvent(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(first.Data) != "first" {
		t.Errorf("first event data was overwritten: %q", first.Data)
	}
}

func TestSSEParser_UnexpectedEOF(t *testing.T) {
	parser := NewSSEParser(strings.NewReader("event: content_block_delta\ndata: {\"partial\""))

	_, err := parser.NextEvent()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestSSEParser_EmptyStream(t *testing.T) {
	_, err := NewSSEParser(strings.NewReader("\n\n")).NextEvent()
	if err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
