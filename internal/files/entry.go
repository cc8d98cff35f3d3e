// Package files reconciles the stored per-user file list into canonical
// records. Three historical entry shapes coexist in the same list: a bare
// key string, an object keyed by "filename", and an object keyed only by
// "publicId". Callers only ever see Record.
package files

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"gorm.io/datatypes"
)

// ErrUnrecoverable is returned by Normalize when no key can be extracted.
var ErrUnrecoverable = errors.New("file entry has no recoverable key")

// Kind tags the stored shape of an Entry.
type Kind int

const (
	KindMalformed Kind = iota
	KindKey            // bare JSON string holding the key
	KindObject         // JSON object with filename and/or publicId
)

func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindObject:
		return "object"
	default:
		return "malformed"
	}
}

// Entry is one raw element of a user's file list. Raw is kept verbatim so
// entries an operation does not touch are written back unchanged.
type Entry struct {
	Kind Kind
	Raw  json.RawMessage

	key          string // KindKey
	filename     string
	publicID     string
	originalName string
	storageURL   string
	uploadDate   time.Time
}

// Record is the canonical view of a stored file.
type Record struct {
	StorageKey   string    `json:"storageKey"`
	PublicID     string    `json:"publicId"` // same value as StorageKey, kept for older clients
	OriginalName string    `json:"originalName"`
	UploadDate   time.Time `json:"uploadDate,omitzero"`
	StorageURL   string    `json:"storageUrl,omitempty"`
	Legacy       bool      `json:"legacy,omitempty"` // stored as a bare key string
}

// storedObject is the shape new entries are written in.
type storedObject struct {
	Filename     string    `json:"filename"`
	PublicID     string    `json:"publicId"`
	OriginalName string    `json:"originalName"`
	UploadDate   time.Time `json:"uploadDate"`
	StorageURL   string    `json:"storageUrl,omitempty"`
}

// NewEntry builds an object entry for a freshly uploaded file.
func NewEntry(key, originalName, storageURL string, uploaded time.Time) (Entry, error) {
	raw, err := json.Marshal(storedObject{
		Filename:     key,
		PublicID:     key,
		OriginalName: originalName,
		UploadDate:   uploaded.UTC(),
		StorageURL:   storageURL,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("encode file entry: %w", err)
	}
	return parseEntry(raw), nil
}

// ParseList decodes the stored files column. A NULL or empty column is an
// empty list; a single non-array value is treated as a one-element list.
func ParseList(data datatypes.JSON) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] != '[' {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("decode file list: invalid json")
		}
		return []Entry{parseEntry(trimmed)}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}

	entries := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		entries = append(entries, parseEntry(raw))
	}
	return entries, nil
}

// EncodeList writes entries back as a JSON array, copying each Raw verbatim.
func EncodeList(entries []Entry) (datatypes.JSON, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range entries {
		if len(e.Raw) == 0 {
			return nil, fmt.Errorf("encode file list: entry %d has no raw value", i)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e.Raw)
	}
	buf.WriteByte(']')
	return datatypes.JSON(buf.Bytes()), nil
}

func parseEntry(raw json.RawMessage) Entry {
	e := Entry{Kind: KindMalformed, Raw: raw}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s != "" {
			e.Kind = KindKey
			e.key = s
		}
		return e
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return e
	}

	e.filename = stringField(obj, "filename")
	e.publicID = stringField(obj, "publicId")
	if e.filename == "" && e.publicID == "" {
		return e
	}

	e.Kind = KindObject
	e.originalName = firstNonEmpty(stringField(obj, "originalName"), stringField(obj, "originalname"))
	e.storageURL = firstNonEmpty(stringField(obj, "storageUrl"), stringField(obj, "cloudinaryUrl"))
	e.uploadDate = dateField(obj, "uploadDate")
	return e
}

func stringField(obj map[string]json.RawMessage, name string) string {
	raw, ok := obj[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// dateField accepts RFC 3339 strings and the {"$date": ...} form produced
// by document-store exports.
func dateField(obj map[string]json.RawMessage, name string) time.Time {
	raw, ok := obj[name]
	if !ok {
		return time.Time{}
	}

	var t time.Time
	if err := json.Unmarshal(raw, &t); err == nil {
		return t
	}

	var wrapped struct {
		Date json.RawMessage `json:"$date"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Date) > 0 {
		if err := json.Unmarshal(wrapped.Date, &t); err == nil {
			return t
		}
		var ms int64
		if err := json.Unmarshal(wrapped.Date, &ms); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Normalize converts any stored shape into a Record. The key is taken from
// filename, then publicId, then the bare string.
func Normalize(e Entry) (Record, error) {
	var key string
	switch e.Kind {
	case KindObject:
		key = firstNonEmpty(e.filename, e.publicID)
	case KindKey:
		key = e.key
	}
	if key == "" {
		return Record{}, ErrUnrecoverable
	}

	name := e.originalName
	if name == "" {
		name = path.Base(key)
	}

	return Record{
		StorageKey:   key,
		PublicID:     key,
		OriginalName: name,
		UploadDate:   e.uploadDate,
		StorageURL:   e.storageURL,
		Legacy:       e.Kind == KindKey,
	}, nil
}

// keyFields returns every value of e that may hold a storage key.
func (e Entry) keyFields() []string {
	switch e.Kind {
	case KindKey:
		return []string{e.key}
	case KindObject:
		fields := make([]string, 0, 2)
		if e.filename != "" {
			fields = append(fields, e.filename)
		}
		if e.publicID != "" {
			fields = append(fields, e.publicID)
		}
		return fields
	}
	return nil
}
