package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/procexec"
)

type fakeUploader struct {
	key, path string
	err       error
}

func (f *fakeUploader) Upload(_ context.Context, key, path string) (string, error) {
	f.key, f.path = key, path
	if f.err != nil {
		return "", f.err
	}
	return "s3://bucket/" + key, nil
}

func newTestService(t *testing.T, run procexec.RunnerFunc, up Uploader) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "uploads")
	os.MkdirAll(src, 0755)
	dst := filepath.Join(root, "backups")
	s := NewService(run, src, dst, up)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	return s, dst
}

func TestRunWritesArchive(t *testing.T) {
	var argv []string
	run := procexec.RunnerFunc(func(_ context.Context, cmd procexec.Command) (*procexec.Output, error) {
		argv = cmd.Argv
		return &procexec.Output{}, os.WriteFile(cmd.Argv[2], []byte("tarball"), 0644)
	})
	s, dst := newTestService(t, run, nil)

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Name != "uploads-20260301-123000.tar.gz" {
		t.Errorf("name = %q", res.Name)
	}
	if res.Location != filepath.Join(dst, res.Name) || res.Size != 7 {
		t.Errorf("result = %+v", res)
	}
	if argv[0] != "tar" || argv[len(argv)-1] != "uploads" {
		t.Errorf("argv = %v", argv)
	}
}

func TestRunUploadsWhenConfigured(t *testing.T) {
	run := procexec.RunnerFunc(func(_ context.Context, cmd procexec.Command) (*procexec.Output, error) {
		return &procexec.Output{}, os.WriteFile(cmd.Argv[2], []byte("x"), 0644)
	})
	up := &fakeUploader{}
	s, _ := newTestService(t, run, up)

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Location != "s3://bucket/"+res.Name || up.key != res.Name {
		t.Errorf("location = %q, uploaded key = %q", res.Location, up.key)
	}

	up.err = errors.New("access denied")
	if _, err := s.Run(context.Background()); err == nil {
		t.Error("upload failure not reported")
	}
}

func TestRunRemovesPartialArchive(t *testing.T) {
	var archive string
	run := procexec.RunnerFunc(func(_ context.Context, cmd procexec.Command) (*procexec.Output, error) {
		archive = cmd.Argv[2]
		os.WriteFile(archive, []byte("partial"), 0644)
		return &procexec.Output{ExitCode: 2, Stderr: "tar: disk full"}, nil
	})
	s, _ := newTestService(t, run, nil)

	_, err := s.Run(context.Background())
	if !apperrors.Is(err, apperrors.KindInternal) {
		t.Fatalf("err = %v, want Internal", err)
	}
	if _, statErr := os.Stat(archive); !os.IsNotExist(statErr) {
		t.Error("partial archive left behind")
	}
}
