package lsp

import "unicode/utf16"

// Position math. The protocol measures Character in UTF-16 code units
// while Go strings are UTF-8, so byte columns and wire columns diverge as
// soon as a line contains anything beyond ASCII.

// OffsetToPosition converts a byte offset in content to a protocol
// Position. Offsets beyond the content clamp to its end.
func OffsetToPosition(content string, offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(content) {
		offset = len(content)
	}

	line := 0
	lineStart := 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}

	character := 0
	for _, r := range content[lineStart:offset] {
		character += len(utf16.Encode([]rune{r}))
	}
	return Position{Line: line, Character: character}
}

// UTF16ToByteOffset converts a UTF-16 column to a byte offset within a
// single line. Columns past the end of the line clamp to its length, and
// a column landing inside a surrogate pair snaps to the next rune
// boundary so the result never splits a character.
func UTF16ToByteOffset(line string, col int) int {
	if col <= 0 {
		return 0
	}
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		units += len(utf16.Encode([]rune{r}))
	}
	return len(line)
}
