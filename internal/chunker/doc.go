// Package chunker divides file text into overlapping line windows for indexing.
//
// Lines are appended to a buffer until the next line would push the buffer
// past the character budget. The buffer is then closed as a chunk and the
// next one is seeded with the trailing lines of the closed buffer that fit
// the overlap budget. A line is never split, so a single line longer than
// the budget becomes a chunk of its own.
//
// # Basic Usage
//
//	c := chunker.New(800, 120)
//	for _, ch := range c.Chunk(text, "pkg/app.py", "python") {
//	    fmt.Printf("lines %d-%d\n", ch.StartLine, ch.EndLine)
//	}
//
// Lengths are counted in characters (runes), not bytes. Line numbers are
// 1-based and inclusive, and the final chunk always ends on the last line.
package chunker
