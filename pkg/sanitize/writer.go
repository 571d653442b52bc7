package sanitize

import "io"

// Writer wraps a log sink and masks registered secrets in every write.
// It sits between zerolog and its output so a secret that reaches a log
// statement through any path still never reaches the sink.
type Writer struct {
	out io.Writer
	s   *Sanitizer
}

// NewWriter wraps out with the given sanitizer.
func NewWriter(out io.Writer, s *Sanitizer) *Writer {
	return &Writer{out: out, s: s}
}

// Write masks secrets and forwards to the underlying sink. The reported
// byte count refers to the input so zerolog never sees a short write;
// masking is length-preserving anyway.
func (w *Writer) Write(p []byte) (int, error) {
	masked := w.s.Mask(string(p))
	if _, err := io.WriteString(w.out, masked); err != nil {
		return 0, err
	}
	return len(p), nil
}
