package rename

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/unminlab/unmin/internal/lsp"
	"github.com/unminlab/unmin/pkg/logger"
)

// Failure reasons reported per symbol. These are wire-visible strings;
// clients match on them.
const (
	ReasonNotFound      = "declaration not found"
	ReasonNotRenameable = "not renameable"
	ReasonTimeout       = "request timed out"
	ReasonEmptyEdit     = "empty edit"
)

// Target pairs a minified name with the readable name it should become.
type Target struct {
	Original string
	Desired  string
}

// Outcome records what happened to one target.
type Outcome struct {
	Original   string
	Desired    string
	Renamed    bool
	References int
	Reason     string // set when Renamed is false
}

// Report aggregates a batch. Every requested target appears in exactly
// one outcome, in request order.
type Report struct {
	Outcomes        []Outcome
	TotalReferences int
}

// Renamed returns the successful renames as original -> desired.
func (r *Report) Renamed() map[string]string {
	m := make(map[string]string)
	for _, o := range r.Outcomes {
		if o.Renamed {
			m[o.Original] = o.Desired
		}
	}
	return m
}

// Failures returns the failed renames as original -> reason.
func (r *Report) Failures() map[string]string {
	m := make(map[string]string)
	for _, o := range r.Outcomes {
		if !o.Renamed {
			m[o.Original] = o.Reason
		}
	}
	return m
}

// session is the slice of the language server session the orchestrator
// needs. Narrow so tests can drive the flow without a child process.
type session interface {
	OpenDocument(path string) error
	Resync(path, content string) error
	PrepareRename(ctx context.Context, uri string, pos lsp.Position) error
	Rename(ctx context.Context, uri string, pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error)
	References(ctx context.Context, uri string, pos lsp.Position, includeDeclaration bool) ([]lsp.Location, error)
}

// Orchestrator replays symbol renames through a language server, one
// target at a time. Each successful rename is written to disk and synced
// back to the server before the next target is even looked up, so later
// anchor scans always run against the rewritten text.
type Orchestrator struct {
	sess session
	log  *logger.Logger
}

// NewOrchestrator builds an orchestrator on a started session.
func NewOrchestrator(sess *lsp.Session, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Default()
	}
	return &Orchestrator{sess: sess, log: log}
}

// RenameAll processes targets in order against the document at path.
// Per-symbol failures are absorbed into the report; a transport or spawn
// level failure aborts the batch and is returned instead.
func (o *Orchestrator) RenameAll(ctx context.Context, path string, targets []Target) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := o.sess.OpenDocument(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	uri := lsp.PathToURI(path)
	text := string(content)
	mode := info.Mode().Perm()
	report := &Report{}

	for _, target := range targets {
		outcome, newText, err := o.renameOne(ctx, path, uri, text, mode, target)
		if err != nil {
			return nil, err
		}
		text = newText
		report.Outcomes = append(report.Outcomes, outcome)
		report.TotalReferences += outcome.References
	}

	o.log.Info("batch done: %d renamed, %d failed, %d references",
		len(report.Renamed()), len(report.Failures()), report.TotalReferences)
	return report, nil
}

// renameOne runs the scan/prepare/references/rename/apply sequence for a
// single target. It returns the document text the next target should see.
// A non-nil error is always fatal to the batch.
func (o *Orchestrator) renameOne(ctx context.Context, path, uri, text string, mode os.FileMode, target Target) (Outcome, string, error) {
	out := Outcome{Original: target.Original, Desired: target.Desired}

	anchors := FindDeclarations(text, target.Original)
	if len(anchors) == 0 {
		o.log.Warn("no declaration of %q in %s", target.Original, path)
		out.Reason = ReasonNotFound
		return out, text, nil
	}
	if len(anchors) > 1 {
		o.log.Warn("%d declarations of %q in %s, renaming the first only",
			len(anchors), target.Original, path)
	}
	pos := lsp.OffsetToPosition(text, anchors[0])

	if err := o.sess.PrepareRename(ctx, uri, pos); err != nil {
		if lsp.IsFatal(err) {
			return out, text, err
		}
		o.log.Warn("prepareRename %q: %v", target.Original, err)
		out.Reason = failureReason(err)
		return out, text, nil
	}

	refs, err := o.sess.References(ctx, uri, pos, true)
	if err != nil {
		if lsp.IsFatal(err) {
			return out, text, err
		}
		// The count is informational; a failed lookup just reports zero.
		o.log.Debug("references %q: %v", target.Original, err)
	}
	out.References = len(refs)

	edit, err := o.sess.Rename(ctx, uri, pos, target.Desired)
	if err != nil {
		if lsp.IsFatal(err) {
			return out, text, err
		}
		o.log.Warn("rename %q -> %q: %v", target.Original, target.Desired, err)
		out.Reason = failureReason(err)
		return out, text, nil
	}

	edits := EditsForDocument(edit, uri)
	if len(edits) == 0 {
		o.log.Warn("rename %q -> %q produced no edits", target.Original, target.Desired)
		out.Reason = ReasonEmptyEdit
		return out, text, nil
	}

	newText := ApplyEdits(text, edits)
	if err := os.WriteFile(path, []byte(newText), mode); err != nil {
		return out, text, fmt.Errorf("write %s: %w", path, err)
	}
	if err := o.sess.Resync(path, newText); err != nil {
		return out, text, fmt.Errorf("resync %s: %w", path, err)
	}

	o.log.Info("renamed %q -> %q (%d edits, %d references)",
		target.Original, target.Desired, len(edits), out.References)
	out.Renamed = true
	return out, newText, nil
}

// failureReason maps an error to its wire-visible per-symbol reason.
func failureReason(err error) string {
	switch {
	case errors.Is(err, lsp.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, lsp.ErrNotRenameable):
		return ReasonNotRenameable
	}
	var respErr *lsp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.Message
	}
	return err.Error()
}
