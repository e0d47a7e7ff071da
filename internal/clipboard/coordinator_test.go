package clipboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/procexec"
	"github.com/Shubham6444/host/internal/vfs"
)

var carol = vfs.Caller{UserID: 3, Username: "carol", Role: vfs.RoleUser, SessionID: "sess-carol"}

type env struct {
	co      *Coordinator
	store   *MemoryStore
	sandbox string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	uploads := t.TempDir()
	r := vfs.NewResolver(uploads, nil)
	x := vfs.NewExecutor(procexec.RunnerFunc(func(context.Context, procexec.Command) (*procexec.Output, error) {
		t.Fatal("runner must not be used by paste")
		return nil, nil
	}), time.Minute)
	store := NewMemoryStore()
	e := &env{co: NewCoordinator(store, r, x), store: store, sandbox: filepath.Join(uploads, "3")}
	for _, rel := range []string{"a.txt", "b.txt"} {
		e.write(t, rel, rel)
	}
	if err := os.MkdirAll(filepath.Join(e.sandbox, "dest"), 0755); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *env) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(e.sandbox, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *env) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(e.sandbox, rel))
	return err == nil
}

// Scenario C: a later selection replaces the earlier one; pasting a cut
// moves the item and clears the clipboard.
func TestSelectionOverwritesAndCutPasteClears(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.co.SetSelection(ctx, carol, vfs.NamespaceUser, []string{"a.txt"}, OpCopy); err != nil {
		t.Fatalf("copy selection: %v", err)
	}
	if err := e.co.SetSelection(ctx, carol, vfs.NamespaceUser, []string{"b.txt"}, OpCut); err != nil {
		t.Fatalf("cut selection: %v", err)
	}

	cb, _ := e.co.Get(ctx, carol)
	if cb == nil || len(cb.Items) != 1 || cb.Items[0] != "b.txt" || cb.Operation != OpCut {
		t.Fatalf("clipboard = %+v, want {b.txt cut}", cb)
	}

	res, err := e.co.Paste(ctx, carol, vfs.NamespaceUser, "dest")
	if err != nil {
		t.Fatalf("Paste: %v", err)
	}
	if !res.Succeeded() || !res.Cleared {
		t.Errorf("paste result = %+v", res)
	}
	if !e.exists("dest/b.txt") || e.exists("b.txt") {
		t.Error("b.txt was not moved")
	}
	if !e.exists("a.txt") || e.exists("dest/a.txt") {
		t.Error("a.txt should be untouched")
	}
	if cb, _ := e.co.Get(ctx, carol); cb != nil {
		t.Errorf("clipboard not cleared: %+v", cb)
	}
}

func TestCopyPasteKeepsClipboard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.co.SetSelection(ctx, carol, "", []string{"a.txt"}, OpCopy); err != nil {
		t.Fatal(err)
	}
	res, err := e.co.Paste(ctx, carol, vfs.NamespaceUser, "dest")
	if err != nil || !res.Succeeded() {
		t.Fatalf("Paste: %+v, %v", res, err)
	}
	if res.Cleared {
		t.Error("copy paste should keep the clipboard")
	}
	if !e.exists("a.txt") || !e.exists("dest/a.txt") {
		t.Error("copy did not duplicate a.txt")
	}
}

func TestFailedCutPasteKeepsClipboard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, "dest/b.txt", "already here")

	if err := e.co.SetSelection(ctx, carol, vfs.NamespaceUser, []string{"a.txt", "b.txt"}, OpCut); err != nil {
		t.Fatal(err)
	}
	res, err := e.co.Paste(ctx, carol, vfs.NamespaceUser, "dest")
	if err != nil {
		t.Fatalf("Paste: %v", err)
	}
	if res.Succeeded() || res.Cleared {
		t.Errorf("result = %+v, want partial failure", res)
	}
	if !res.Results[0].Success || res.Results[1].Success {
		t.Errorf("per-item results = %+v", res.Results)
	}
	cb, _ := e.co.Get(ctx, carol)
	if cb == nil || len(cb.Items) != 2 {
		t.Errorf("clipboard changed after failed paste: %+v", cb)
	}
}

func TestSetSelectionValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.co.SetSelection(ctx, carol, vfs.NamespaceUser, []string{"a.txt"}, Operation("link")); !apperrors.Is(err, apperrors.KindInvalidArgument) {
		t.Errorf("bad op err = %v", err)
	}
	if err := e.co.SetSelection(ctx, carol, vfs.NamespaceUser, nil, OpCopy); !apperrors.Is(err, apperrors.KindInvalidArgument) {
		t.Errorf("empty items err = %v", err)
	}
	if err := e.co.SetSelection(ctx, carol, vfs.NamespaceUser, []string{"../x"}, OpCopy); !apperrors.Is(err, apperrors.KindInvalidPath) {
		t.Errorf("escape err = %v", err)
	}
	if err := e.co.SetSelection(ctx, carol, vfs.NamespaceEtc, []string{"passwd"}, OpCopy); !apperrors.Is(err, apperrors.KindForbidden) {
		t.Errorf("etc for non-admin err = %v", err)
	}
	if cb, _ := e.co.Get(ctx, carol); cb != nil {
		t.Errorf("rejected selections were stored: %+v", cb)
	}
}

func TestPasteEmptyClipboard(t *testing.T) {
	e := newEnv(t)
	_, err := e.co.Paste(context.Background(), carol, vfs.NamespaceUser, "dest")
	if !apperrors.Is(err, apperrors.KindInvalidArgument) {
		t.Errorf("err = %v, want InvalidArgument", err)
	}
}

func TestClipboardsAreSessionScoped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := carol
	other.SessionID = "sess-carol-laptop"

	if err := e.co.SetSelection(ctx, carol, vfs.NamespaceUser, []string{"a.txt"}, OpCopy); err != nil {
		t.Fatal(err)
	}
	if cb, _ := e.co.Get(ctx, other); cb != nil {
		t.Errorf("other session sees clipboard: %+v", cb)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	in := &Clipboard{Items: []string{"x"}, Operation: OpCopy}
	s.Put(ctx, "s", in)
	in.Items[0] = "mutated"

	got, _ := s.Get(ctx, "s")
	if got.Items[0] != "x" {
		t.Errorf("store aliased caller slice: %v", got.Items)
	}
}
