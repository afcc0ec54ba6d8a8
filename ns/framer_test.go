package ns

import (
	"strings"
	"testing"
)

func TestFramerPullLineTokenizes(t *testing.T) {
	var f Framer
	f.Push([]byte("msg_user  bob   msg hello\n"))
	payload, ok := f.PullLine()
	if !ok {
		t.Fatal("expected a complete line")
	}
	want := []string{"msg_user", "bob", "msg", "hello"}
	if len(payload) != len(want) {
		t.Fatalf("payload = %v, want %v", payload, want)
	}
	for i := range want {
		if payload[i] != want[i] {
			t.Errorf("payload[%d] = %q, want %q", i, payload[i], want[i])
		}
	}
}

func TestFramerPartialLineNotDispatched(t *testing.T) {
	var f Framer
	f.Push([]byte("state aw"))
	if _, ok := f.PullLine(); ok {
		t.Fatal("pulled a line without a newline")
	}
	if !f.PendingInput() {
		t.Fatal("partial input was dropped")
	}
	f.Push([]byte("ay\n"))
	payload, ok := f.PullLine()
	if !ok {
		t.Fatal("expected a complete line after second fragment")
	}
	if len(payload) != 2 || payload[0] != "state" || payload[1] != "away" {
		t.Errorf("payload = %v, want [state away]", payload)
	}
}

func TestFramerPushBackRemainder(t *testing.T) {
	var f Framer
	f.Push([]byte("ping 1\nversion\n"))
	first, ok := f.PullLine()
	if !ok || first[0] != "ping" {
		t.Fatalf("first line = %v, want ping", first)
	}
	second, ok := f.PullLine()
	if !ok || len(second) != 1 || second[0] != "version" {
		t.Fatalf("second line = %v, want [version]", second)
	}
	if _, ok := f.PullLine(); ok {
		t.Fatal("pulled a third line from empty input")
	}
}

func TestFramerFragmentBoundaries(t *testing.T) {
	// Any fragmentation, including a cut exactly at the newline, must
	// tokenize like the unfragmented push.
	line := "msg_user bob msg hi\n"
	for cut := 1; cut < len(line); cut++ {
		var f Framer
		f.Push([]byte(line[:cut]))
		f.Push([]byte(line[cut:]))
		payload, ok := f.PullLine()
		if !ok {
			t.Fatalf("cut at %d: no line", cut)
		}
		if len(payload) != 4 || payload[0] != "msg_user" || payload[3] != "hi" {
			t.Errorf("cut at %d: payload = %v", cut, payload)
		}
	}
}

func TestFramerSanitizesControlChars(t *testing.T) {
	var f Framer
	f.Push([]byte("st\x01ate away\r\n"))
	payload, ok := f.PullLine()
	if !ok {
		t.Fatal("expected a complete line")
	}
	if payload[0] != "st?ate" {
		t.Errorf("payload[0] = %q, want %q", payload[0], "st?ate")
	}
	if payload[1] != "away" {
		t.Errorf("payload[1] = %q, want %q (carriage return must be stripped)", payload[1], "away")
	}
}

func TestFramerEmptyLineConsumed(t *testing.T) {
	var f Framer
	f.Push([]byte("\nversion\n"))
	payload, ok := f.PullLine()
	if !ok {
		t.Fatal("empty line should still be consumed")
	}
	if len(payload) != 0 {
		t.Errorf("payload = %v, want no tokens", payload)
	}
	if next, ok := f.PullLine(); !ok || next[0] != "version" {
		t.Errorf("next line = %v, want [version]", next)
	}
}

func TestFramerChunksOutput(t *testing.T) {
	var f Framer
	text := strings.Repeat("x", ChunkSize*2+10)
	f.EnqueueChunks(text)

	var frags []string
	for {
		frag, ok := f.PopOutput()
		if !ok {
			break
		}
		frags = append(frags, frag)
	}
	if len(frags) != 3 {
		t.Fatalf("fragments = %d, want 3", len(frags))
	}
	if len(frags[0]) != ChunkSize || len(frags[1]) != ChunkSize || len(frags[2]) != 10 {
		t.Errorf("fragment sizes = %d/%d/%d, want %d/%d/10",
			len(frags[0]), len(frags[1]), len(frags[2]), ChunkSize, ChunkSize)
	}
	if strings.Join(frags, "") != text {
		t.Error("reassembled fragments differ from enqueued text")
	}
}

func TestFramerRequeueHead(t *testing.T) {
	var f Framer
	f.EnqueueChunks("first")
	f.EnqueueChunks("second")

	frag, _ := f.PopOutput()
	f.RequeueHead(frag[2:])

	next, _ := f.PopOutput()
	if next != "rst" {
		t.Errorf("requeued fragment = %q, want %q", next, "rst")
	}
	next, _ = f.PopOutput()
	if next != "second" {
		t.Errorf("following fragment = %q, want %q", next, "second")
	}
}
