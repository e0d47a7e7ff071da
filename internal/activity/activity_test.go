package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type failingStore struct{}

func (failingStore) Insert(context.Context, *Entry) error { return errors.New("db down") }
func (failingStore) ListByUser(context.Context, int64, int) ([]Entry, error) {
	return nil, errors.New("db down")
}

func TestRecentNewestFirstAndScoped(t *testing.T) {
	l := NewLog(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Record(ctx, Entry{UserID: 1, Type: TypeFile, Title: fmt.Sprintf("op %d", i)})
	}
	l.Record(ctx, Entry{UserID: 2, Type: TypeTerminal, Title: "other"})

	got, err := l.Recent(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Title != "op 2" || got[1].Title != "op 1" {
		t.Errorf("entries = %+v", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	l := NewLog(failingStore{})
	l.Record(context.Background(), Entry{UserID: 1, Type: TypeFile, Title: "x"})

	if _, err := l.Recent(context.Background(), 1, 10); err == nil {
		t.Error("Recent should surface store errors")
	}
}
