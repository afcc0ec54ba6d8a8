package ns

import "strings"

// ChunkSize is the wire transmission unit: no single enqueued output
// fragment exceeds this many bytes, bounding the cost of a partial write.
const ChunkSize = 256

// Framer assembles inbound byte chunks into newline-delimited command
// lines and fragments outbound text into fixed-size transmission chunks.
// One framer per session, owned by the reactor loop.
type Framer struct {
	input  []string
	output []string
}

// Push appends an inbound fragment to the input queue. Carriage returns
// are stripped and non-printable control characters other than the
// newline record separator are replaced with '?'.
func (f *Framer) Push(data []byte) {
	if len(data) == 0 {
		return
	}
	cleaned := make([]byte, 0, len(data))
	for _, b := range data {
		switch {
		case b == '\r':
			// dropped
		case b == '\n':
			cleaned = append(cleaned, b)
		case b < 0x20 || b == 0x7f:
			cleaned = append(cleaned, '?')
		default:
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) > 0 {
		f.input = append(f.input, string(cleaned))
	}
}

// PullLine removes and returns the next complete line as a whitespace
// tokenized payload. The newline is stripped; the remainder of the
// fragment containing it is pushed back for the next call. When no
// newline is queued yet the input is left untouched and ok is false.
// A complete but empty line is consumed and yields ok with no tokens.
func (f *Framer) PullLine() (payload []string, ok bool) {
	for i, frag := range f.input {
		nl := strings.IndexByte(frag, '\n')
		if nl < 0 {
			continue
		}
		var line strings.Builder
		for _, prior := range f.input[:i] {
			line.WriteString(prior)
		}
		line.WriteString(frag[:nl])

		rest := frag[nl+1:]
		if rest != "" {
			f.input = append([]string{rest}, f.input[i+1:]...)
		} else {
			f.input = append([]string(nil), f.input[i+1:]...)
		}
		return strings.Fields(line.String()), true
	}
	return nil, false
}

// EnqueueChunks splits text into ChunkSize fragments and appends them
// to the output queue.
func (f *Framer) EnqueueChunks(text string) {
	for len(text) > ChunkSize {
		f.output = append(f.output, text[:ChunkSize])
		text = text[ChunkSize:]
	}
	if len(text) > 0 {
		f.output = append(f.output, text)
	}
}

// PopOutput removes and returns the next output fragment.
func (f *Framer) PopOutput() (string, bool) {
	if len(f.output) == 0 {
		return "", false
	}
	frag := f.output[0]
	f.output = f.output[1:]
	return frag, true
}

// RequeueHead puts the unsent remainder of a fragment back at the head
// of the output queue after a short write.
func (f *Framer) RequeueHead(frag string) {
	if frag == "" {
		return
	}
	f.output = append([]string{frag}, f.output...)
}

// OutputEmpty reports whether everything enqueued has been transmitted.
func (f *Framer) OutputEmpty() bool { return len(f.output) == 0 }

// PendingInput reports whether any unconsumed inbound fragments remain.
func (f *Framer) PendingInput() bool { return len(f.input) > 0 }
