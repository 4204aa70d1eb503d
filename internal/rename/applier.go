package rename

import (
	"sort"
	"strings"

	"github.com/unminlab/unmin/internal/lsp"
)

// ApplyEdits rewrites content with the given text edits. Edits are
// applied in reverse position order, last edit first, so earlier offsets
// stay valid while later ones are already rewritten. The edits must not
// overlap; rename edits never do. The input slice is left untouched.
func ApplyEdits(content string, edits []lsp.TextEdit) string {
	if len(edits) == 0 {
		return content
	}

	sorted := make([]lsp.TextEdit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Range.Start, sorted[j].Range.Start
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		return a.Character > b.Character
	})

	lines := strings.Split(content, "\n")
	for _, edit := range sorted {
		lines = applyOne(lines, edit)
	}
	return strings.Join(lines, "\n")
}

// applyOne splices a single edit into the line slice. Ranges are
// line/character pairs with characters in UTF-16 code units; out-of-range
// positions clamp to the document.
func applyOne(lines []string, edit lsp.TextEdit) []string {
	start, end := edit.Range.Start, edit.Range.End
	if start.Line >= len(lines) {
		return lines
	}
	if end.Line >= len(lines) {
		end.Line = len(lines) - 1
		end.Character = len(lines[end.Line]) // clamp resolves below
	}

	startLine := lines[start.Line]
	endLine := lines[end.Line]
	sb := lsp.UTF16ToByteOffset(startLine, start.Character)
	eb := lsp.UTF16ToByteOffset(endLine, end.Character)

	// Collapse the spanned lines into one string, then re-split: the
	// replacement text may itself contain newlines.
	spliced := startLine[:sb] + edit.NewText + endLine[eb:]
	newLines := strings.Split(spliced, "\n")

	out := make([]string, 0, len(lines)-(end.Line-start.Line+1)+len(newLines))
	out = append(out, lines[:start.Line]...)
	out = append(out, newLines...)
	out = append(out, lines[end.Line+1:]...)
	return out
}

// EditsForDocument pulls the edits addressed to uri out of a workspace
// edit, tolerating escaping differences in how the server echoes URIs.
func EditsForDocument(edit *lsp.WorkspaceEdit, uri string) []lsp.TextEdit {
	if edit == nil {
		return nil
	}
	if edits, ok := edit.Changes[uri]; ok {
		return edits
	}
	for other, edits := range edit.Changes {
		if lsp.SameDocument(other, uri) {
			return edits
		}
	}
	return nil
}
