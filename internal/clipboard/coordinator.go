package clipboard

import (
	"context"
	"time"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/vfs"
)

// Resolver is the part of vfs.Resolver the coordinator needs.
type Resolver interface {
	Resolve(c vfs.Caller, ns vfs.Namespace, rel string) (vfs.ResolvedPath, error)
}

// Transfer performs the copy or move of one item.
type Transfer interface {
	Copy(ctx context.Context, src, dstDir vfs.ResolvedPath) (string, error)
	Move(ctx context.Context, src, dstDir vfs.ResolvedPath) (string, error)
}

// Coordinator records selections and applies them on paste.
type Coordinator struct {
	store    Store
	resolver Resolver
	transfer Transfer
}

// NewCoordinator creates a coordinator.
func NewCoordinator(store Store, resolver Resolver, transfer Transfer) *Coordinator {
	return &Coordinator{store: store, resolver: resolver, transfer: transfer}
}

// ParseOperation validates the wire form of an operation.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpCopy, OpCut:
		return Operation(s), nil
	}
	return "", apperrors.Newf(apperrors.KindInvalidArgument, "unknown clipboard operation %q", s)
}

// SetSelection replaces the session's clipboard. Every item is resolved
// now so a selection the caller may not access is never recorded.
func (co *Coordinator) SetSelection(ctx context.Context, c vfs.Caller, ns vfs.Namespace, items []string, op Operation) error {
	if _, err := ParseOperation(string(op)); err != nil {
		return err
	}
	if len(items) == 0 {
		return apperrors.New(apperrors.KindInvalidArgument, "no items selected")
	}
	if c.SessionID == "" {
		return apperrors.New(apperrors.KindInvalidArgument, "no session")
	}
	clean := make([]string, 0, len(items))
	for _, item := range items {
		p, err := co.resolver.Resolve(c, ns, item)
		if err != nil {
			return err
		}
		if p.IsRoot() {
			return apperrors.New(apperrors.KindInvalidPath, "cannot select the root folder")
		}
		clean = append(clean, p.Rel)
	}
	if ns == "" {
		ns = vfs.NamespaceUser
	}
	return co.store.Put(ctx, c.SessionID, &Clipboard{
		Items:     clean,
		Operation: op,
		Namespace: ns,
		Created:   time.Now().UTC(),
	})
}

// Get returns the session's clipboard, or nil when it is empty.
func (co *Coordinator) Get(ctx context.Context, c vfs.Caller) (*Clipboard, error) {
	return co.store.Get(ctx, c.SessionID)
}

// Clear empties the session's clipboard.
func (co *Coordinator) Clear(ctx context.Context, sessionID string) error {
	return co.store.Clear(ctx, sessionID)
}

// PasteResult is the outcome of applying a clipboard.
type PasteResult struct {
	Operation Operation        `json:"operation"`
	Results   []vfs.ItemResult `json:"results"`
	Cleared   bool             `json:"cleared"`
}

// Succeeded reports whether every item was applied.
func (r *PasteResult) Succeeded() bool {
	for _, it := range r.Results {
		if !it.Success {
			return false
		}
	}
	return true
}

// Paste applies the session's clipboard into destRel under destNS. Every
// item is attempted in recorded order. A cut clipboard is cleared only
// when all items moved; any failure leaves the clipboard intact.
func (co *Coordinator) Paste(ctx context.Context, c vfs.Caller, destNS vfs.Namespace, destRel string) (*PasteResult, error) {
	cb, err := co.store.Get(ctx, c.SessionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "clipboard unavailable", err)
	}
	if cb == nil || len(cb.Items) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "clipboard is empty")
	}

	dst, err := co.resolver.Resolve(c, destNS, destRel)
	if err != nil {
		return nil, err
	}

	res := &PasteResult{Operation: cb.Operation, Results: make([]vfs.ItemResult, 0, len(cb.Items))}
	for _, item := range cb.Items {
		res.Results = append(res.Results, co.pasteOne(ctx, c, cb, item, dst))
	}

	if cb.Operation == OpCut && res.Succeeded() {
		if err := co.store.Clear(ctx, c.SessionID); err != nil {
			return res, apperrors.Wrap(apperrors.KindInternal, "clipboard unavailable", err)
		}
		res.Cleared = true
	}
	return res, nil
}

func (co *Coordinator) pasteOne(ctx context.Context, c vfs.Caller, cb *Clipboard, item string, dst vfs.ResolvedPath) vfs.ItemResult {
	src, err := co.resolver.Resolve(c, cb.Namespace, item)
	if err == nil {
		if cb.Operation == OpCut {
			_, err = co.transfer.Move(ctx, src, dst)
		} else {
			_, err = co.transfer.Copy(ctx, src, dst)
		}
	}
	if err != nil {
		return vfs.ItemResult{Path: item, Error: apperrors.Message(err)}
	}
	return vfs.ItemResult{Path: item, Success: true}
}
