package vfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/procexec"
)

type fakeRunner struct {
	calls []procexec.Command
	out   *procexec.Output
	err   error
	// effect runs before returning, e.g. to create the archive.
	effect func(cmd procexec.Command)
}

func (f *fakeRunner) Run(_ context.Context, cmd procexec.Command) (*procexec.Output, error) {
	f.calls = append(f.calls, cmd)
	if f.effect != nil {
		f.effect(cmd)
	}
	if f.out == nil && f.err == nil {
		return &procexec.Output{}, nil
	}
	return f.out, f.err
}

type fixture struct {
	r    *Resolver
	x    *Executor
	run  *fakeRunner
	root string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r, uploads := newTestResolver(t)
	run := &fakeRunner{}
	f := &fixture{r: r, x: NewExecutor(run, time.Minute), run: run, root: filepath.Join(uploads, "1")}
	if err := os.MkdirAll(f.root, 0755); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) path(t *testing.T, rel string) ResolvedPath {
	t.Helper()
	p, err := f.r.Resolve(alice, NamespaceUser, rel)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", rel, err)
	}
	return p
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateFileRoundTrip(t *testing.T) {
	f := newFixture(t)
	p := f.path(t, "site/index.html")

	if err := f.x.CreateFile(p, []byte("<h1>hi</h1>")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	got, err := f.x.ReadFile(p, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "<h1>hi</h1>" {
		t.Errorf("content = %q", got)
	}

	if err := f.x.CreateFile(p, nil); !apperrors.Is(err, apperrors.KindAlreadyExists) {
		t.Errorf("second CreateFile err = %v, want AlreadyExists", err)
	}
}

func TestCreateFolder(t *testing.T) {
	f := newFixture(t)
	p := f.path(t, "a/b/c")
	if err := f.x.CreateFolder(p); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if fi, err := os.Stat(p.Abs); err != nil || !fi.IsDir() {
		t.Fatalf("folder not created: %v", err)
	}
	if err := f.x.CreateFolder(p); !apperrors.Is(err, apperrors.KindAlreadyExists) {
		t.Errorf("err = %v, want AlreadyExists", err)
	}
}

func TestWriteFileOverwritesAtomically(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", "old")
	p := f.path(t, "notes.txt")

	if err := f.x.WriteFile(p, []byte("new content")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, _ := os.ReadFile(p.Abs)
	if string(got) != "new content" {
		t.Errorf("content = %q", got)
	}
	entries, _ := os.ReadDir(f.root)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteStreamFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	p := f.path(t, "up/big.bin")

	boom := errors.New("boom")
	_, err := WriteStream(p, &failingReader{after: 10, err: boom})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(p.Abs); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("target exists after failed write: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(p.Abs))
	if len(entries) != 0 {
		t.Errorf("leftover entries: %d", len(entries))
	}
}

type failingReader struct {
	after int
	err   error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, r.err
	}
	n := len(p)
	if n > r.after {
		n = r.after
	}
	for i := range p[:n] {
		p[i] = 'x'
	}
	r.after -= n
	return n, nil
}

func TestRenameThenList(t *testing.T) {
	f := newFixture(t)
	f.write(t, "old.txt", "x")
	p := f.path(t, "old.txt")
	dst := f.path(t, "new.txt")

	if err := f.x.Rename(p, "new.txt", dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	files, _, err := List(f.path(t, ""), ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 || files[0].Name != "new.txt" {
		t.Errorf("files = %+v, want only new.txt", files)
	}
}

func TestRenameValidation(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "a")
	f.write(t, "b.txt", "b")
	p := f.path(t, "a.txt")

	for _, name := range []string{"", ".", "..", "x/y", `x\y`} {
		if err := f.x.Rename(p, name, p); !apperrors.Is(err, apperrors.KindInvalidName) {
			t.Errorf("Rename(%q) err = %v, want InvalidName", name, err)
		}
	}
	if err := f.x.Rename(p, "b.txt", f.path(t, "b.txt")); !apperrors.Is(err, apperrors.KindAlreadyExists) {
		t.Errorf("rename onto existing err = %v, want AlreadyExists", err)
	}
	if err := f.x.Rename(f.path(t, ""), "x", f.path(t, "x")); !apperrors.Is(err, apperrors.KindInvalidPath) {
		t.Errorf("rename root err = %v, want InvalidPath", err)
	}
	if err := f.x.Rename(f.path(t, "ghost.txt"), "g.txt", f.path(t, "g.txt")); !apperrors.Is(err, apperrors.KindNotFound) {
		t.Errorf("rename missing err = %v, want NotFound", err)
	}
}

func TestDeleteManyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "a")
	f.write(t, "dir/b.txt", "b")

	paths := []ResolvedPath{f.path(t, "a.txt"), f.path(t, "dir"), f.path(t, "never-existed")}
	for round := 0; round < 2; round++ {
		results := f.x.DeleteMany(paths)
		if len(results) != len(paths) {
			t.Fatalf("round %d: %d results", round, len(results))
		}
		for _, r := range results {
			if !r.Success {
				t.Errorf("round %d: %s failed: %s", round, r.Path, r.Error)
			}
		}
	}
	if _, err := os.Stat(filepath.Join(f.root, "dir")); !os.IsNotExist(err) {
		t.Error("dir still exists")
	}
}

func TestDeleteManyContinuesPastFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "a")

	results := f.x.DeleteMany([]ResolvedPath{f.path(t, ""), f.path(t, "a.txt")})
	if results[0].Success {
		t.Error("deleting the root should fail")
	}
	if !results[1].Success {
		t.Errorf("second item not deleted: %s", results[1].Error)
	}
}

func TestCopyAndMove(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/a.txt", "alpha")
	f.write(t, "src/sub/b.txt", "beta")
	if err := os.MkdirAll(filepath.Join(f.root, "dst"), 0755); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := f.x.Copy(ctx, f.path(t, "src"), f.path(t, "dst")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(f.root, "dst", "src", "sub", "b.txt"))
	if err != nil || string(got) != "beta" {
		t.Fatalf("copied content = %q, %v", got, err)
	}
	if _, err := f.x.Copy(ctx, f.path(t, "src"), f.path(t, "dst")); !apperrors.Is(err, apperrors.KindAlreadyExists) {
		t.Errorf("second copy err = %v, want AlreadyExists", err)
	}
	if _, err := f.x.Copy(ctx, f.path(t, "src"), f.path(t, "src/sub")); !apperrors.Is(err, apperrors.KindInvalidPath) {
		t.Errorf("copy into itself err = %v, want InvalidPath", err)
	}

	if _, err := f.x.Move(ctx, f.path(t, "src/a.txt"), f.path(t, "")); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "src", "a.txt")); !os.IsNotExist(err) {
		t.Error("source still present after move")
	}
	if got, _ := os.ReadFile(filepath.Join(f.root, "a.txt")); string(got) != "alpha" {
		t.Errorf("moved content = %q", got)
	}
}

func TestCopyLinkItem(t *testing.T) {
	f := newFixture(t)
	f.write(t, "data/a.txt", "alpha")
	if err := os.MkdirAll(filepath.Join(f.root, "dst"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join("data", "a.txt"), filepath.Join(f.root, "link")); err != nil {
		t.Fatal(err)
	}

	dst, err := f.x.Copy(context.Background(), f.path(t, "link"), f.path(t, "dst"))
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "alpha" {
		t.Fatalf("copied link reads %q, %v", got, err)
	}
	fi, err := os.Lstat(dst)
	if err != nil || fi.Mode()&fs.ModeSymlink == 0 {
		t.Errorf("copy is not a link: %v", err)
	}
}

func TestCopyBrokenLinkItem(t *testing.T) {
	f := newFixture(t)
	if err := os.Symlink("missing.txt", filepath.Join(f.root, "dangling")); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(f.root, "dst"), 0755); err != nil {
		t.Fatal(err)
	}
	// Resolve refuses dangling links, so build the path by hand.
	src := ResolvedPath{Abs: filepath.Join(f.root, "dangling"), Namespace: NamespaceUser, Rel: "dangling", Base: f.root}

	if _, err := f.x.Copy(context.Background(), src, f.path(t, "dst")); !apperrors.Is(err, apperrors.KindInvalidPath) {
		t.Errorf("err = %v, want InvalidPath", err)
	}
	if _, err := os.Lstat(filepath.Join(f.root, "dst", "dangling")); !os.IsNotExist(err) {
		t.Error("something was written for a broken link")
	}
}

func TestCopyIntoLinkedSubfolder(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/sub/b.txt", "beta")
	if err := os.Symlink(filepath.Join("src", "sub"), filepath.Join(f.root, "alias")); err != nil {
		t.Fatal(err)
	}

	_, err := f.x.Copy(context.Background(), f.path(t, "src"), f.path(t, "alias"))
	if !apperrors.Is(err, apperrors.KindInvalidPath) {
		t.Fatalf("err = %v, want InvalidPath", err)
	}
	if _, err := os.Lstat(filepath.Join(f.root, "src", "sub", "src")); !os.IsNotExist(err) {
		t.Error("copy recursed into its own source")
	}
	if _, err := f.x.Move(context.Background(), f.path(t, "src"), f.path(t, "alias")); !apperrors.Is(err, apperrors.KindInvalidPath) {
		t.Errorf("move err = %v, want InvalidPath", err)
	}
}

func TestCompressUsesRunner(t *testing.T) {
	f := newFixture(t)
	f.write(t, "site/index.html", "x")
	f.run.effect = func(cmd procexec.Command) {
		os.WriteFile(filepath.Join(cmd.Dir, cmd.Argv[3]), []byte("PK"), 0644)
	}

	archive, err := f.x.Compress(context.Background(), f.path(t, "site"))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if archive != "site.zip" {
		t.Errorf("archive = %q", archive)
	}
	if len(f.run.calls) != 1 {
		t.Fatalf("runner calls = %d", len(f.run.calls))
	}
	cmd := f.run.calls[0]
	if cmd.Dir != f.root || strings.Join(cmd.Argv, " ") != "zip -r -q ./site.zip ./site" {
		t.Errorf("command = %v in %s", cmd.Argv, cmd.Dir)
	}

	if _, err := f.x.Compress(context.Background(), f.path(t, "site")); !apperrors.Is(err, apperrors.KindAlreadyExists) {
		t.Errorf("second compress err = %v, want AlreadyExists", err)
	}
}

func TestCompressDashLeadingName(t *testing.T) {
	f := newFixture(t)
	name := "-TTT=touch owned #"
	f.write(t, name, "x")
	f.run.effect = func(cmd procexec.Command) {
		os.WriteFile(filepath.Join(cmd.Dir, cmd.Argv[3]), []byte("PK"), 0644)
	}

	archive, err := f.x.Compress(context.Background(), f.path(t, name))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if archive != name+".zip" {
		t.Errorf("archive = %q", archive)
	}
	for _, arg := range f.run.calls[0].Argv[3:] {
		if strings.HasPrefix(arg, "-") {
			t.Errorf("argument %q would be read as a flag", arg)
		}
	}
}

func TestCompressWithZip(t *testing.T) {
	if _, err := exec.LookPath("zip"); err != nil {
		t.Skip("zip not installed")
	}
	f := newFixture(t)
	f.x = NewExecutor(procexec.NewExecRunner(), time.Minute)
	name := "-TTT=touch owned #"
	f.write(t, name, "payload")

	archive, err := f.x.Compress(context.Background(), f.path(t, name))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, archive)); err != nil {
		t.Errorf("archive missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "owned")); !os.IsNotExist(err) {
		t.Error("zip ran the name as an option")
	}
}

func TestCompressWithoutArchiveFails(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "x")

	// Exit 0 but nothing written, e.g. zip streaming to stdout.
	if _, err := f.x.Compress(context.Background(), f.path(t, "a.txt")); !apperrors.Is(err, apperrors.KindCompressionFailed) {
		t.Errorf("err = %v, want CompressionFailed", err)
	}
}

func TestCompressFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "x")
	f.run.out = &procexec.Output{ExitCode: 12, Stderr: "zip error: Nothing to do!"}

	_, err := f.x.Compress(context.Background(), f.path(t, "a.txt"))
	if !apperrors.Is(err, apperrors.KindCompressionFailed) {
		t.Errorf("err = %v, want CompressionFailed", err)
	}

	f.run.out, f.run.err = nil, errors.New("exec: \"zip\": executable file not found")
	_, err = f.x.Compress(context.Background(), f.path(t, "a.txt"))
	if !apperrors.Is(err, apperrors.KindCompressionFailed) {
		t.Errorf("missing zip err = %v, want CompressionFailed", err)
	}
}

func TestStatAndPermissions(t *testing.T) {
	f := newFixture(t)
	f.write(t, "run.sh", "#!/bin/sh\n")
	p := f.path(t, "run.sh")
	if err := os.Chmod(p.Abs, 0754); err != nil {
		t.Fatal(err)
	}

	props, err := f.x.Stat(p)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if props.Name != "run.sh" || props.IsDirectory || props.Size != 10 {
		t.Errorf("props = %+v", props)
	}

	if _, err := f.x.Stat(f.path(t, "missing")); !apperrors.Is(err, apperrors.KindNotFound) {
		t.Errorf("missing err = %v, want NotFound", err)
	}
}

func TestDecomposeMode(t *testing.T) {
	p := DecomposeMode(0754)
	if p.Octal != "754" {
		t.Errorf("Octal = %q", p.Octal)
	}
	want := Permissions{
		Octal:  "754",
		Owner:  PermissionBits{Read: true, Write: true, Execute: true},
		Group:  PermissionBits{Read: true, Execute: true},
		Others: PermissionBits{Read: true},
	}
	if p != want {
		t.Errorf("DecomposeMode(0754) = %+v, want %+v", p, want)
	}
	if got := DecomposeMode(fs.ModeDir | 0700).Octal; got != "700" {
		t.Errorf("dir octal = %q", got)
	}
}
