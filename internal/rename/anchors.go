package rename

import (
	"fmt"
	"regexp"
)

// declPattern matches a declaration introducing the named symbol. The
// identifier itself is the capture group, so the match gives us the exact
// position to hand to the server. Deliberately regex-only: bundles are
// not parsed as JavaScript.
const declPattern = `\b(?:class|function|var|let|const)\s+(%s)\b`

// FindDeclarations returns the byte offsets of every declaration of name
// in content, in source order. Each offset points at the identifier, not
// at the keyword.
func FindDeclarations(content, name string) []int {
	re, err := regexp.Compile(fmt.Sprintf(declPattern, regexp.QuoteMeta(name)))
	if err != nil {
		return nil
	}

	var offsets []int
	for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
		offsets = append(offsets, m[2])
	}
	return offsets
}
