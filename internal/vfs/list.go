package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/logging"
)

// EntryType distinguishes files from folders in a listing.
type EntryType string

const (
	EntryFile   EntryType = "file"
	EntryFolder EntryType = "folder"
)

// Entry is one row of a directory listing.
type Entry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Type        EntryType `json:"type"`
	Size        int64     `json:"size,omitempty"`
	Modified    time.Time `json:"modified"`
	Extension   string    `json:"extension,omitempty"`
	Permissions string    `json:"permissions"`
}

// Sort keys and orders accepted by List.
const (
	SortByName     = "name"
	SortByModified = "modified"
	SortBySize     = "size"
	SortByType     = "type"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListOptions controls filtering and ordering.
type ListOptions struct {
	SortBy string
	Order  string
	Search string
}

// List returns the files and folders directly inside p. A missing
// directory lists as empty; entries that cannot be stat'ed are skipped.
func List(p ResolvedPath, opts ListOptions) (files, folders []Entry, err error) {
	files, folders = []Entry{}, []Entry{}

	fi, err := os.Stat(p.Abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return files, folders, nil
		}
		return nil, nil, apperrors.FromOS("list", p.Abs, err)
	}
	if !fi.IsDir() {
		return nil, nil, apperrors.New(apperrors.KindInvalidPath, "not a directory")
	}

	dirents, err := os.ReadDir(p.Abs)
	if err != nil {
		return nil, nil, apperrors.FromOS("list", p.Abs, err)
	}

	needle := strings.ToLower(opts.Search)
	for _, de := range dirents {
		name := de.Name()
		if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
			continue
		}
		info, err := os.Stat(filepath.Join(p.Abs, name))
		if err != nil {
			logging.Debug("skipping unreadable entry",
				logging.String("path", filepath.Join(p.Abs, name)), logging.Err(err))
			continue
		}

		e := Entry{
			Name:        name,
			Path:        path.Join(p.Rel, name),
			Modified:    info.ModTime(),
			Permissions: OctalMode(info.Mode()),
		}
		if info.IsDir() {
			e.Type = EntryFolder
			folders = append(folders, e)
			continue
		}
		e.Type = EntryFile
		e.Size = info.Size()
		e.Extension = strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		files = append(files, e)
	}

	SortEntries(files, opts.SortBy, opts.Order)
	SortEntries(folders, opts.SortBy, opts.Order)
	return files, folders, nil
}

// SortEntries orders entries in place. Entries are first put in name order
// and then stably sorted by the key, so ties keep name order whatever the
// direction. Size and type carry no meaning for folders, which sort by name.
func SortEntries(entries []Entry, sortBy, order string) {
	sort.SliceStable(entries, func(i, j int) bool {
		return nameLess(entries[i], entries[j])
	})

	desc := order == OrderDesc
	var cmp func(a, b Entry) int
	switch sortBy {
	case SortByModified:
		cmp = func(a, b Entry) int { return a.Modified.Compare(b.Modified) }
	case SortBySize:
		cmp = func(a, b Entry) int {
			if a.Type == EntryFolder || b.Type == EntryFolder {
				return compareNames(a, b)
			}
			return compareInt64(a.Size, b.Size)
		}
	case SortByType:
		cmp = func(a, b Entry) int {
			if a.Type == EntryFolder || b.Type == EntryFolder {
				return compareNames(a, b)
			}
			return strings.Compare(a.Extension, b.Extension)
		}
	default:
		cmp = compareNames
	}

	sort.SliceStable(entries, func(i, j int) bool {
		c := cmp(entries[i], entries[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareNames(a, b Entry) int {
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

func nameLess(a, b Entry) bool { return compareNames(a, b) < 0 }

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
