package ingest

// Default chunking parameters, in characters (Unicode code points).
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// SplitOption configures [Split].
type SplitOption func(*splitConfig)

type splitConfig struct {
	size    int
	overlap int
}

// WithChunkSize sets the window length. Values <= 0 keep the default.
func WithChunkSize(n int) SplitOption {
	return func(c *splitConfig) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithOverlap sets how many characters consecutive windows share.
// Negative values, and values not smaller than the chunk size, mean no
// overlap.
func WithOverlap(n int) SplitOption {
	return func(c *splitConfig) { c.overlap = n }
}

// Split cuts text into windows of the configured size, each starting
// size-overlap characters after the previous one. The last window ends at
// the end of the text and may be shorter. Text no longer than one window is
// returned whole; empty text yields no chunks.
func Split(text string, opts ...SplitOption) []string {
	cfg := splitConfig{size: DefaultChunkSize, overlap: DefaultOverlap}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.overlap < 0 || cfg.overlap >= cfg.size {
		cfg.overlap = 0
	}
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= cfg.size {
		return []string{text}
	}

	step := cfg.size - cfg.overlap
	var chunks []string
	for start := 0; ; start += step {
		end := min(start+cfg.size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			return chunks
		}
	}
}
