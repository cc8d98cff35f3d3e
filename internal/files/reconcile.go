package files

import (
	"path"
	"strings"

	"github.com/agjmills/drive/internal/storage"
)

// Matches reports whether e refers to target. Every key-bearing field is
// compared for equality first; containment is the fallback that lets bare
// identifiers match legacy path-prefixed keys. An empty target or a
// malformed entry never matches.
func Matches(e Entry, target string) bool {
	if target == "" {
		return false
	}
	for _, f := range e.keyFields() {
		if f == target || strings.Contains(f, target) {
			return true
		}
	}
	return false
}

// Remove returns entries with every match of target excluded, preserving
// order, plus the entries that were removed. Malformed entries are always
// kept. Removing an absent key returns the input unchanged. Containment means
// a short target can remove many entries; Service.Delete refuses the folder
// prefix and its fragments.
func Remove(entries []Entry, target string) (kept, removed []Entry) {
	kept = make([]Entry, 0, len(entries))
	for _, e := range entries {
		if Matches(e, target) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	return kept, removed
}

// Find returns the first entry matching target. Exact key matches win over
// containment matches anywhere in the list.
func Find(entries []Entry, target string) (Entry, bool) {
	if target == "" {
		return Entry{}, false
	}
	for _, e := range entries {
		for _, f := range e.keyFields() {
			if f == target {
				return e, true
			}
		}
	}
	for _, e := range entries {
		if Matches(e, target) {
			return e, true
		}
	}
	return Entry{}, false
}

var (
	imageExtensions = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "gif": true,
		"webp": true, "bmp": true, "tiff": true, "svg": true,
	}
	videoExtensions = map[string]bool{
		"mp4": true, "avi": true, "mov": true, "wmv": true,
		"flv": true, "webm": true, "mkv": true, "3gp": true,
	}
)

// Classify maps a display name to the provider resource kind by extension.
// Unknown or missing extensions are raw.
func Classify(originalName string) storage.ResourceKind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(originalName), "."))
	switch {
	case imageExtensions[ext]:
		return storage.KindImage
	case videoExtensions[ext]:
		return storage.KindVideo
	default:
		return storage.KindRaw
	}
}

// KindOf picks the resource kind for a stored entry. Bare-string entries
// predate kind tracking and were always uploaded as raw.
func KindOf(e Entry) storage.ResourceKind {
	if e.Kind == KindKey {
		return storage.KindRaw
	}
	rec, err := Normalize(e)
	if err != nil {
		return storage.KindRaw
	}
	return Classify(rec.OriginalName)
}

// TrimFolder strips any folder prefix from an identifier received from a
// client ("drive-uploads/abc.png" becomes "abc.png").
func TrimFolder(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
