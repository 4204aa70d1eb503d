package mapping

import (
	"regexp"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/unminlab/unmin/pkg/logger"
)

// DefaultThreshold is the minimum confidence a learned pair needs before
// it is worth keeping.
const DefaultThreshold = 0.5

// identPattern matches a JavaScript identifier.
var identPattern = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// jsKeywords are never rename candidates on either side of a pair.
var jsKeywords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "export": true, "extends": true, "finally": true,
	"for": true, "function": true, "if": true, "import": true, "in": true,
	"instanceof": true, "let": true, "new": true, "null": true, "return": true,
	"super": true, "switch": true, "this": true, "throw": true, "true": true,
	"false": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true, "async": true, "await": true,
	"of": true, "static": true, "get": true, "set": true, "undefined": true,
}

// Learner extracts rename pairs by diffing a pristine minified file
// against its manually edited counterpart. Each adjacent delete/insert
// hunk is mined for identifier substitutions and scored by how similar
// the surrounding text stays once the candidate names are masked out.
type Learner struct {
	threshold float64
	log       *logger.Logger
}

// NewLearner builds a learner keeping pairs at or above threshold. A
// non-positive threshold selects the default.
func NewLearner(threshold float64, log *logger.Logger) *Learner {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = logger.Default()
	}
	return &Learner{threshold: threshold, log: log}
}

// Learn diffs original against edited and returns the rename pairs it is
// confident about, tagged with module. Pairs come back in discovery
// order with their scores as confidence.
func (l *Learner) Learn(original, edited, module string) []Mapping {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, edited, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	now := time.Now().Unix()
	seen := make(map[string]bool)
	var out []Mapping

	for i := 0; i < len(diffs)-1; i++ {
		if diffs[i].Type != diffmatchpatch.DiffDelete || diffs[i+1].Type != diffmatchpatch.DiffInsert {
			continue
		}
		deleted, inserted := diffs[i].Text, diffs[i+1].Text

		for _, pair := range pairIdentifiers(deleted, inserted) {
			if seen[pair.original] {
				continue
			}
			score := scorePair(pair, deleted, inserted)
			if score < l.threshold {
				l.log.Debug("discarding %q -> %q (score %.2f)", pair.original, pair.desired, score)
				continue
			}
			seen[pair.original] = true
			out = append(out, Mapping{
				Original:   pair.original,
				Desired:    pair.desired,
				Confidence: score,
				Module:     module,
				UpdatedAt:  now,
			})
			l.log.Info("learned %q -> %q (confidence %.2f)", pair.original, pair.desired, score)
		}
	}
	return out
}

type identPair struct {
	original string
	desired  string
}

// pairIdentifiers lines up the identifiers of a deleted fragment with
// those of the inserted fragment that replaced it. Positional pairing:
// an edit that renames symbols keeps everything else in place, so the
// k-th deleted identifier corresponds to the k-th inserted one.
func pairIdentifiers(deleted, inserted string) []identPair {
	from := candidateIdents(deleted)
	to := candidateIdents(inserted)

	n := len(from)
	if len(to) < n {
		n = len(to)
	}

	var pairs []identPair
	for i := 0; i < n; i++ {
		if from[i] == to[i] {
			continue
		}
		pairs = append(pairs, identPair{original: from[i], desired: to[i]})
	}
	return pairs
}

func candidateIdents(text string) []string {
	var out []string
	for _, ident := range identPattern.FindAllString(text, -1) {
		if jsKeywords[ident] {
			continue
		}
		out = append(out, ident)
	}
	return out
}

// scorePair rates how plausible a rename is. The candidate names are
// masked out of both fragments and what remains is compared two ways:
// Jaccard over character bigrams catches reordered but shared context,
// Levenshtein catches context that stayed in sequence. A true rename
// leaves both near 1; an unrelated rewrite drags both down.
func scorePair(pair identPair, deleted, inserted string) float64 {
	maskedFrom := maskIdent(deleted, pair.original)
	maskedTo := maskIdent(inserted, pair.desired)

	if maskedFrom == "" && maskedTo == "" {
		// The fragments were nothing but the identifiers themselves: a
		// pure token swap, the strongest signal this diff can give.
		return 1.0
	}

	jac := jaccardBigrams(maskedFrom, maskedTo)
	lev := levenshteinSimilarity(maskedFrom, maskedTo)
	return (jac + lev) / 2
}

func maskIdent(text, ident string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(ident) + `\b`)
	return strings.TrimSpace(re.ReplaceAllString(text, "\x00"))
}

// jaccardBigrams computes set overlap of character bigrams.
func jaccardBigrams(a, b string) float64 {
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 && len(bb) == 0 {
		return 1.0
	}
	if len(ba) == 0 || len(bb) == 0 {
		return 0.0
	}

	intersection := 0
	for g := range ba {
		if bb[g] {
			intersection++
		}
	}
	union := len(ba) + len(bb) - intersection
	return float64(intersection) / float64(union)
}

func bigrams(s string) map[string]bool {
	runes := []rune(s)
	out := make(map[string]bool, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])] = true
	}
	return out
}

// levenshteinSimilarity is 1 minus the normalized edit distance.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// levenshtein computes edit distance with two rolling rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
