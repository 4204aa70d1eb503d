package rename

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/unminlab/unmin/internal/lsp"
	"github.com/unminlab/unmin/pkg/logger"
)

func testLog() *logger.Logger {
	return logger.New(io.Discard, io.Discard, logger.ERROR, "test")
}

// fakeSession scripts the language server side of an orchestrator run.
type fakeSession struct {
	opened   []string
	resyncs  []string
	prepared []lsp.Position

	prepareErr func(pos lsp.Position) error
	refsFn     func(pos lsp.Position) ([]lsp.Location, error)
	renameFn   func(pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error)
}

func (f *fakeSession) OpenDocument(path string) error {
	f.opened = append(f.opened, path)
	return nil
}

func (f *fakeSession) Resync(path, content string) error {
	f.resyncs = append(f.resyncs, content)
	return nil
}

func (f *fakeSession) PrepareRename(ctx context.Context, uri string, pos lsp.Position) error {
	f.prepared = append(f.prepared, pos)
	if f.prepareErr != nil {
		return f.prepareErr(pos)
	}
	return nil
}

func (f *fakeSession) References(ctx context.Context, uri string, pos lsp.Position, includeDeclaration bool) ([]lsp.Location, error) {
	if f.refsFn != nil {
		return f.refsFn(pos)
	}
	return nil, nil
}

func (f *fakeSession) Rename(ctx context.Context, uri string, pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error) {
	if f.renameFn != nil {
		return f.renameFn(pos, newName)
	}
	return &lsp.WorkspaceEdit{}, nil
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.js")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readBack(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestRenameAllRewritesFile(t *testing.T) {
	path := writeTemp(t, "class Wu1 {}\nnew Wu1();\n")
	uri := lsp.PathToURI(path)

	fake := &fakeSession{
		refsFn: func(pos lsp.Position) ([]lsp.Location, error) {
			return []lsp.Location{
				{URI: uri, Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 6}, End: lsp.Position{Line: 0, Character: 9}}},
				{URI: uri, Range: lsp.Range{Start: lsp.Position{Line: 1, Character: 4}, End: lsp.Position{Line: 1, Character: 7}}},
			}, nil
		},
		renameFn: func(pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error) {
			return &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
				uri: {
					edit(0, 6, 0, 9, newName),
					edit(1, 4, 1, 7, newName),
				},
			}}, nil
		},
	}

	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"Wu1", "ReactModule"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}

	if len(report.Outcomes) != 1 || !report.Outcomes[0].Renamed {
		t.Fatalf("unexpected outcomes: %+v", report.Outcomes)
	}
	if report.TotalReferences != 2 {
		t.Errorf("TotalReferences = %d, want 2", report.TotalReferences)
	}
	if got := report.Renamed()["Wu1"]; got != "ReactModule" {
		t.Errorf("Renamed()[Wu1] = %q", got)
	}

	want := "class ReactModule {}\nnew ReactModule();\n"
	if got := readBack(t, path); got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
	if len(fake.resyncs) != 1 || fake.resyncs[0] != want {
		t.Errorf("server not resynced with the rewritten text: %q", fake.resyncs)
	}
	if len(fake.prepared) != 1 || fake.prepared[0] != (lsp.Position{Line: 0, Character: 6}) {
		t.Errorf("anchor position = %+v", fake.prepared)
	}
}

func TestRenameAllMissingSymbol(t *testing.T) {
	content := "var aa = 1;\n"
	path := writeTemp(t, content)

	fake := &fakeSession{}
	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"zz", "beta"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}

	if len(report.Outcomes) != 1 {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	out := report.Outcomes[0]
	if out.Renamed || out.Reason != ReasonNotFound {
		t.Errorf("outcome = %+v, want failure %q", out, ReasonNotFound)
	}
	if len(fake.prepared) != 0 {
		t.Error("prepareRename was called for a symbol with no anchor")
	}
	if got := readBack(t, path); got != content {
		t.Errorf("file changed: %q", got)
	}
}

func TestPerSymbolFailureDoesNotAbortBatch(t *testing.T) {
	path := writeTemp(t, "var aa = 1;\nvar bb = 2;\n")
	uri := lsp.PathToURI(path)

	fake := &fakeSession{
		prepareErr: func(pos lsp.Position) error {
			if pos.Line == 0 {
				return fmt.Errorf("probe: %w", lsp.ErrNotRenameable)
			}
			return nil
		},
		renameFn: func(pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error) {
			return &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
				uri: {edit(1, 4, 1, 6, newName)},
			}}, nil
		},
	}

	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"aa", "alpha"}, {"bb", "beta"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}

	if len(report.Outcomes) != 2 {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	if report.Outcomes[0].Renamed || report.Outcomes[0].Reason != ReasonNotRenameable {
		t.Errorf("first outcome = %+v", report.Outcomes[0])
	}
	if !report.Outcomes[1].Renamed {
		t.Errorf("second outcome = %+v", report.Outcomes[1])
	}

	want := "var aa = 1;\nvar beta = 2;\n"
	if got := readBack(t, path); got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
	if failures := report.Failures(); failures["aa"] != ReasonNotRenameable {
		t.Errorf("Failures() = %v", failures)
	}
}

func TestTimeoutReportedPerSymbol(t *testing.T) {
	path := writeTemp(t, "var aa = 1;\n")

	fake := &fakeSession{
		prepareErr: func(lsp.Position) error {
			return fmt.Errorf("textDocument/prepareRename: %w", lsp.ErrTimeout)
		},
	}
	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"aa", "alpha"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}
	if report.Outcomes[0].Reason != ReasonTimeout {
		t.Errorf("reason = %q, want %q", report.Outcomes[0].Reason, ReasonTimeout)
	}
}

func TestEmptyEditReported(t *testing.T) {
	content := "var aa = 1;\n"
	path := writeTemp(t, content)

	fake := &fakeSession{} // default rename answer is an empty edit
	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"aa", "alpha"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}
	if report.Outcomes[0].Reason != ReasonEmptyEdit {
		t.Errorf("reason = %q, want %q", report.Outcomes[0].Reason, ReasonEmptyEdit)
	}
	if got := readBack(t, path); got != content {
		t.Errorf("file changed on an empty edit: %q", got)
	}
}

func TestTransportErrorAbortsBatch(t *testing.T) {
	path := writeTemp(t, "var aa = 1;\nvar bb = 2;\n")

	fake := &fakeSession{
		renameFn: func(lsp.Position, string) (*lsp.WorkspaceEdit, error) {
			return nil, &lsp.TransportError{Op: "write", Err: io.ErrClosedPipe}
		},
	}
	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"aa", "alpha"}, {"bb", "beta"}})
	if err == nil {
		t.Fatal("expected the batch to abort")
	}
	var te *lsp.TransportError
	if !errors.As(err, &te) {
		t.Errorf("error = %v, want TransportError", err)
	}
	if report != nil {
		t.Errorf("partial report returned on fatal error: %+v", report)
	}
}

// A rename shifts every later offset; the next target must be anchored
// against the rewritten text, not the original.
func TestLaterTargetsSeeRewrittenText(t *testing.T) {
	path := writeTemp(t, "var aa=1;var bb=2;\n")
	uri := lsp.PathToURI(path)

	fake := &fakeSession{}
	fake.renameFn = func(pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error) {
		switch newName {
		case "alpha":
			return &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
				uri: {edit(0, 4, 0, 6, newName)},
			}}, nil
		case "beta":
			return &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
				uri: {edit(0, 16, 0, 18, newName)},
			}}, nil
		}
		return &lsp.WorkspaceEdit{}, nil
	}

	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"aa", "alpha"}, {"bb", "beta"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}
	if len(report.Renamed()) != 2 {
		t.Fatalf("renamed = %v", report.Renamed())
	}

	// bb sat at column 13 before the first rename grew the line by 3.
	if len(fake.prepared) != 2 {
		t.Fatalf("prepared = %+v", fake.prepared)
	}
	if fake.prepared[1] != (lsp.Position{Line: 0, Character: 16}) {
		t.Errorf("second anchor = %+v, want column 16", fake.prepared[1])
	}

	want := "var alpha=1;var beta=2;\n"
	if got := readBack(t, path); got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
}

// With several declarations of one name, the first one is the anchor.
func TestDuplicateDeclarationsFirstWins(t *testing.T) {
	path := writeTemp(t, "var cc = 1;\nvar cc = 2;\n")
	uri := lsp.PathToURI(path)

	fake := &fakeSession{
		renameFn: func(pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error) {
			return &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
				uri: {edit(0, 4, 0, 6, newName)},
			}}, nil
		},
	}
	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"cc", "gamma"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}
	if !report.Outcomes[0].Renamed {
		t.Fatalf("outcome = %+v", report.Outcomes[0])
	}
	if fake.prepared[0] != (lsp.Position{Line: 0, Character: 4}) {
		t.Errorf("anchor = %+v, want the first declaration", fake.prepared[0])
	}
}

// Rewriting the file must not reset its permission bits.
func TestRenamePreservesFileMode(t *testing.T) {
	path := writeTemp(t, "var aa = 1;\n")
	if err := os.Chmod(path, 0600); err != nil {
		t.Fatal(err)
	}
	uri := lsp.PathToURI(path)

	fake := &fakeSession{
		renameFn: func(pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error) {
			return &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
				uri: {edit(0, 4, 0, 6, newName)},
			}}, nil
		},
	}
	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"aa", "alpha"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}
	if !report.Outcomes[0].Renamed {
		t.Fatalf("outcome = %+v", report.Outcomes[0])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Errorf("mode = %v, want 0600", got)
	}
}

func TestReferencesFailureIsNonGating(t *testing.T) {
	path := writeTemp(t, "var aa = 1;\n")
	uri := lsp.PathToURI(path)

	fake := &fakeSession{
		refsFn: func(lsp.Position) ([]lsp.Location, error) {
			return nil, fmt.Errorf("references: %w", lsp.ErrTimeout)
		},
		renameFn: func(pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error) {
			return &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
				uri: {edit(0, 4, 0, 6, newName)},
			}}, nil
		},
	}
	o := &Orchestrator{sess: fake, log: testLog()}
	report, err := o.RenameAll(context.Background(), path, []Target{{"aa", "alpha"}})
	if err != nil {
		t.Fatalf("RenameAll: %v", err)
	}
	out := report.Outcomes[0]
	if !out.Renamed {
		t.Fatalf("outcome = %+v", out)
	}
	if out.References != 0 {
		t.Errorf("references = %d, want 0 after a failed count", out.References)
	}
}
