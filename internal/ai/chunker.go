package ai

const (
	ReasonMaxChunks = "max_chunks"
	ReasonMaxChars  = "max_chars"
)

// Chunker regroups model deltas into slices of roughly Window runes that end
// on a natural boundary, so that the browser renders whole sentences rather
// than token fragments.
//
// A boundary is only accepted in the back half of the window; a paragraph
// break five runes in would otherwise produce a near-empty slice.
type Chunker struct {
	Window    int
	MaxChunks int // 0 means unlimited
	MaxChars  int // 0 means unlimited

	buf       []rune
	chunks    int
	chars     int
	truncated bool
	reason    string
}

// Push buffers text and returns every slice that is ready.
func (c *Chunker) Push(text string) []string {
	if c.truncated || text == "" {
		return nil
	}
	c.buf = append(c.buf, []rune(text)...)
	window := c.Window
	if window <= 0 {
		window = 1
	}
	var out []string
	for len(c.buf) >= window && !c.truncated {
		cut := boundary(c.buf[:window])
		piece := c.buf[:cut]
		c.buf = c.buf[cut:]
		if s, ok := c.emit(piece); ok {
			out = append(out, s)
		}
	}
	return out
}

// Flush returns the buffered remainder, if any.
func (c *Chunker) Flush() []string {
	if c.truncated || len(c.buf) == 0 {
		c.buf = nil
		return nil
	}
	s, ok := c.emit(c.buf)
	c.buf = nil
	if !ok {
		return nil
	}
	return []string{s}
}

// Truncated reports whether text was dropped because a ceiling was reached.
func (c *Chunker) Truncated() bool { return c.truncated }

// Reason is ReasonMaxChunks or ReasonMaxChars once Truncated is true.
func (c *Chunker) Reason() string { return c.reason }

func (c *Chunker) Chunks() int { return c.chunks }

// Chars counts emitted runes.
func (c *Chunker) Chars() int { return c.chars }

func (c *Chunker) emit(piece []rune) (string, bool) {
	if c.MaxChunks > 0 && c.chunks >= c.MaxChunks {
		c.stop(ReasonMaxChunks)
		return "", false
	}
	if c.MaxChars > 0 {
		left := c.MaxChars - c.chars
		if left <= 0 {
			c.stop(ReasonMaxChars)
			return "", false
		}
		if len(piece) > left {
			piece = piece[:left]
			c.stop(ReasonMaxChars)
		}
	}
	c.chunks++
	c.chars += len(piece)
	return string(piece), true
}

func (c *Chunker) stop(reason string) {
	c.truncated = true
	c.reason = reason
	c.buf = nil
}

// boundary returns the cut position inside w, preferring a paragraph break,
// then a sentence end, then a newline, then a space.
func boundary(w []rune) int {
	n := len(w)
	floor := n / 2
	for i := n - 2; i >= floor-1 && i >= 0; i-- {
		if w[i] == '\n' && w[i+1] == '\n' {
			return i + 2
		}
	}
	for i := n - 2; i >= floor-1 && i >= 0; i-- {
		switch w[i] {
		case '.', '!', '?':
			if w[i+1] == ' ' || w[i+1] == '\n' {
				return i + 2
			}
		}
	}
	for i := n - 1; i >= floor && i >= 0; i-- {
		if w[i] == '\n' {
			return i + 1
		}
	}
	for i := n - 1; i >= floor && i >= 0; i-- {
		if w[i] == ' ' {
			return i + 1
		}
	}
	return n
}
