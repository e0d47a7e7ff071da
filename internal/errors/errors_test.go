package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"testing"
)

func TestFromOSClassifies(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, KindNotFound},
		{&fs.PathError{Op: "mkdir", Path: "/x", Err: fs.ErrExist}, KindAlreadyExists},
		{&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, KindForbidden},
		{stderrors.New("disk on fire"), KindInternal},
	}
	for _, tt := range tests {
		got := KindOf(FromOS("op", "/x", tt.err))
		if got != tt.want {
			t.Errorf("FromOS(%v) kind = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestFromOSKeepsExistingKind(t *testing.T) {
	orig := New(KindInvalidName, "bad name")
	if got := FromOS("rename", "/x", orig); got != error(orig) {
		t.Errorf("FromOS rewrapped a classified error: %v", got)
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(KindQuotaExceeded, "too big"))
	if !Is(err, KindQuotaExceeded) {
		t.Errorf("KindOf = %s, want quota_exceeded", KindOf(err))
	}
	if Message(err) != "too big" {
		t.Errorf("Message = %q", Message(err))
	}
}

func TestMessageHidesUnclassified(t *testing.T) {
	_, err := os.Open("/definitely/not/here")
	if Message(err) != "internal error" {
		t.Errorf("Message leaked %q", Message(err))
	}
	if Message(FromOS("open", "/definitely/not/here", err)) != "item not found" {
		t.Errorf("Message = %q", Message(FromOS("open", "", err)))
	}
}
