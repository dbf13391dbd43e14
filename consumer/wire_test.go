// ABOUTME: Tests for the fixed-width command framing
// ABOUTME: Golden frames, field trimming and malformed-length handling

package consumer

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestWriteCommandPadsToCmdLen(t *testing.T) {
	var buf bytes.Buffer

	if err := writeCommand(&buf, CmdReady); err != nil {
		t.Fatalf("writeCommand failed: %v", err)
	}

	if buf.Len() != CmdLen {
		t.Fatalf("Expected %d bytes, got %d", CmdLen, buf.Len())
	}

	if got := buf.String(); got != "ready           " {
		t.Errorf("Unexpected frame %q", got)
	}
}

func TestWriteFrameLayout(t *testing.T) {
	var buf bytes.Buffer

	payload := []byte("hello")

	if err := writeFrame(&buf, CmdCompute, payload); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	frame := buf.Bytes()

	if len(frame) != 2*CmdLen+len(payload) {
		t.Fatalf("Expected %d bytes, got %d", 2*CmdLen+len(payload), len(frame))
	}

	if got := strings.TrimSpace(string(frame[:CmdLen])); got != CmdCompute {
		t.Errorf("command field %q", got)
	}

	if got := strings.TrimSpace(string(frame[CmdLen : 2*CmdLen])); got != "5" {
		t.Errorf("length field %q", got)
	}

	if got := string(frame[2*CmdLen:]); got != "hello" {
		t.Errorf("payload %q", got)
	}
}

func TestReadCommandTrimsWhitespace(t *testing.T) {
	r := strings.NewReader("  result        rest")

	cmd, err := readCommand(r)
	if err != nil {
		t.Fatalf("readCommand failed: %v", err)
	}

	if cmd != CmdResult {
		t.Errorf("Expected %q, got %q", CmdResult, cmd)
	}
}

func TestReadPayloadRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	want := []byte{0x00, 0x01, 0xff, 'a', 'b'}

	if err := writeFrame(&buf, CmdResult, want); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	cmd, err := readCommand(&buf)
	if err != nil || cmd != CmdResult {
		t.Fatalf("readCommand: cmd=%q err=%v", cmd, err)
	}

	got, err := readPayload(&buf)
	if err != nil {
		t.Fatalf("readPayload failed: %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Errorf("payload mismatch: %v vs %v", got, want)
	}
}

func TestReadPayloadRejectsBadLength(t *testing.T) {
	r := strings.NewReader("not-a-number    ")

	_, err := readPayload(r)
	if !errors.Is(err, ErrWireProtocol) {
		t.Fatalf("Expected ErrWireProtocol, got %v", err)
	}
}

func TestReadPayloadRejectsHugeLength(t *testing.T) {
	r := strings.NewReader("99999999999     ")

	_, err := readPayload(r)
	if !errors.Is(err, ErrWireProtocol) {
		t.Fatalf("Expected ErrWireProtocol, got %v", err)
	}
}

func TestReadCommandShortReadIsTransportError(t *testing.T) {
	r := strings.NewReader("rea")

	_, err := readCommand(r)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected ErrTransport, got %v", err)
	}
}
