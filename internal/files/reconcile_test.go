package files

import (
	"testing"
	"time"

	"github.com/agjmills/drive/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const mixedList = `[
  "drive-uploads/legacy1",
  {"filename":"drive-uploads/abc123","originalName":"Holiday.JPG","uploadDate":"2024-03-01T10:00:00Z","cloudinaryUrl":"https://res.example.com/image/upload/drive-uploads/abc123"},
  {"publicId":"drive-uploads/def456","originalname":"notes.txt"},
  42,
  null,
  {"originalName":"orphan.png"}
]`

func parse(t *testing.T, s string) []Entry {
	t.Helper()
	entries, err := ParseList(datatypes.JSON(s))
	require.NoError(t, err)
	return entries
}

func TestParseList_Kinds(t *testing.T) {
	entries := parse(t, mixedList)
	require.Len(t, entries, 6)

	kinds := make([]Kind, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []Kind{KindKey, KindObject, KindObject, KindMalformed, KindMalformed, KindMalformed}, kinds)
}

func TestParseList_EmptyAndScalar(t *testing.T) {
	for _, in := range []string{"", "null", "  "} {
		entries, err := ParseList(datatypes.JSON(in))
		require.NoError(t, err)
		assert.Empty(t, entries)
	}

	// A single stored value that is not an array is a one-element list.
	entries := parse(t, `"drive-uploads/only"`)
	require.Len(t, entries, 1)
	assert.Equal(t, KindKey, entries[0].Kind)

	_, err := ParseList(datatypes.JSON(`[1,`))
	assert.Error(t, err)
}

func TestNormalize_AllShapesYieldSameKey(t *testing.T) {
	shapes := []string{
		`"drive-uploads/k1"`,
		`{"filename":"drive-uploads/k1","originalName":"a.pdf"}`,
		`{"publicId":"drive-uploads/k1","originalname":"a.pdf"}`,
	}

	for _, raw := range shapes {
		entries := parse(t, "["+raw+"]")
		require.Len(t, entries, 1)
		rec, err := Normalize(entries[0])
		require.NoError(t, err, raw)
		assert.Equal(t, "drive-uploads/k1", rec.StorageKey, raw)
		assert.Equal(t, rec.StorageKey, rec.PublicID)
	}
}

func TestNormalize_FilenameWinsOverPublicID(t *testing.T) {
	entries := parse(t, `[{"filename":"a","publicId":"b"}]`)
	rec, err := Normalize(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "a", rec.StorageKey)
}

func TestNormalize_Fields(t *testing.T) {
	entries := parse(t, mixedList)

	legacy, err := Normalize(entries[0])
	require.NoError(t, err)
	assert.True(t, legacy.Legacy)
	assert.Equal(t, "legacy1", legacy.OriginalName)

	obj, err := Normalize(entries[1])
	require.NoError(t, err)
	assert.Equal(t, "Holiday.JPG", obj.OriginalName)
	assert.Equal(t, "https://res.example.com/image/upload/drive-uploads/abc123", obj.StorageURL)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), obj.UploadDate.UTC())

	lower, err := Normalize(entries[2])
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", lower.OriginalName)

	for _, e := range entries[3:] {
		_, err := Normalize(e)
		assert.ErrorIs(t, err, ErrUnrecoverable)
	}
}

func TestNormalize_DocumentExportDate(t *testing.T) {
	entries := parse(t, `[{"filename":"k","uploadDate":{"$date":1700000000000}}]`)
	rec, err := Normalize(entries[0])
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), rec.UploadDate)
}

func TestMatches(t *testing.T) {
	entries := parse(t, mixedList)

	assert.True(t, Matches(entries[0], "drive-uploads/legacy1"), "exact")
	assert.True(t, Matches(entries[0], "legacy1"), "containment fallback for path-prefixed keys")
	assert.True(t, Matches(entries[1], "abc123"))
	assert.True(t, Matches(entries[2], "drive-uploads/def456"))
	assert.False(t, Matches(entries[1], "def456"))

	for _, e := range entries[3:] {
		assert.False(t, Matches(e, "orphan.png"))
	}
	for _, e := range entries {
		assert.False(t, Matches(e, ""), "empty target never matches")
	}
}

func TestRemove_PreservesOrderAndMalformed(t *testing.T) {
	entries := parse(t, mixedList)

	kept, removed := Remove(entries, "abc123")
	require.Len(t, removed, 1)
	require.Len(t, kept, 5)
	assert.Equal(t, entries[0].Raw, kept[0].Raw)
	assert.Equal(t, entries[2].Raw, kept[1].Raw)
	assert.Equal(t, KindMalformed, kept[2].Kind)
	assert.Equal(t, KindMalformed, kept[4].Kind)
}

func TestRemove_Idempotent(t *testing.T) {
	entries := parse(t, mixedList)

	once, _ := Remove(entries, "drive-uploads/def456")
	twice, removed := Remove(once, "drive-uploads/def456")
	assert.Empty(t, removed)
	assert.Equal(t, once, twice)
}

func TestRemove_AbsentKeyReturnsEqualList(t *testing.T) {
	entries := parse(t, mixedList)

	kept, removed := Remove(entries, "not-there")
	assert.Empty(t, removed)
	assert.Equal(t, entries, kept)
}

func TestEncodeList_UntouchedEntriesAreByteIdentical(t *testing.T) {
	in := `["drive-uploads/a" ,  {"publicId" : "x",  "extra": [1, 2]},7]`
	entries := parse(t, in)

	out, err := EncodeList(entries)
	require.NoError(t, err)
	assert.Equal(t, `["drive-uploads/a",{"publicId" : "x",  "extra": [1, 2]},7]`, string(out))

	kept, _ := Remove(entries, "drive-uploads/a")
	out, err = EncodeList(kept)
	require.NoError(t, err)
	assert.Equal(t, `[{"publicId" : "x",  "extra": [1, 2]},7]`, string(out))

	empty, err := EncodeList(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(empty))
}

func TestNewEntry(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	e, err := NewEntry("drive-uploads/u1.png", "cat.png", "", at)
	require.NoError(t, err)
	assert.Equal(t, KindObject, e.Kind)
	assert.JSONEq(t, `{"filename":"drive-uploads/u1.png","publicId":"drive-uploads/u1.png","originalName":"cat.png","uploadDate":"2025-01-02T03:04:05Z"}`, string(e.Raw))

	rec, err := Normalize(e)
	require.NoError(t, err)
	assert.Equal(t, "drive-uploads/u1.png", rec.StorageKey)
	assert.Equal(t, at, rec.UploadDate)
}

func TestFind_PrefersExactMatch(t *testing.T) {
	entries := parse(t, `[{"filename":"drive-uploads/abc-long"},{"filename":"abc"}]`)

	e, ok := Find(entries, "abc")
	require.True(t, ok)
	rec, _ := Normalize(e)
	assert.Equal(t, "abc", rec.StorageKey)

	e, ok = Find(entries, "long")
	require.True(t, ok)
	rec, _ = Normalize(e)
	assert.Equal(t, "drive-uploads/abc-long", rec.StorageKey)

	_, ok = Find(entries, "zzz")
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	tests := map[string]storage.ResourceKind{
		"photo.JPG":   storage.KindImage,
		"icon.svg":    storage.KindImage,
		"scan.tiff":   storage.KindImage,
		"movie.mkv":   storage.KindVideo,
		"clip.3gp":    storage.KindVideo,
		"report.pdf":  storage.KindRaw,
		"archive.tar": storage.KindRaw,
		"README":      storage.KindRaw,
		"":            storage.KindRaw,
	}
	for name, want := range tests {
		assert.Equal(t, want, Classify(name), name)
	}
}

func TestKindOf_LegacyStringIsRaw(t *testing.T) {
	entries := parse(t, `["drive-uploads/pic.png",{"filename":"k","originalName":"pic.png"}]`)
	assert.Equal(t, storage.KindRaw, KindOf(entries[0]))
	assert.Equal(t, storage.KindImage, KindOf(entries[1]))
}

func TestTrimFolder(t *testing.T) {
	assert.Equal(t, "abc.png", TrimFolder("drive-uploads/abc.png"))
	assert.Equal(t, "abc.png", TrimFolder("abc.png"))
	assert.Equal(t, "c", TrimFolder("a/b/c"))
	assert.Equal(t, "", TrimFolder("folder/"))
}
