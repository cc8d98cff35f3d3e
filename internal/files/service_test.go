package files

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/agjmills/drive/internal/database/models"
	"github.com/agjmills/drive/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type memUsers struct {
	mu        sync.Mutex
	users     map[uint]*models.User
	updateErr error
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{users: make(map[uint]*models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) FindByID(_ context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdateFields(_ context.Context, id uint, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if v, ok := fields["files"]; ok {
		m.users[id].Files = v.(datatypes.JSON)
	}
	return nil
}

func (m *memUsers) files(id uint) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.users[id].Files)
}

func newTestService(t *testing.T, files string, publicURL string) (*Service, *memUsers, *storage.MemoryBackend) {
	t.Helper()
	users := newMemUsers(&models.User{ID: 1, Username: "alice", Files: datatypes.JSON(files)})
	provider := storage.NewMemoryBackend(publicURL)
	return NewService(users, provider, "drive-uploads"), users, provider
}

func TestService_UploadAppendsObjectEntry(t *testing.T) {
	svc, users, provider := newTestService(t, `["drive-uploads/old"]`, "")
	ctx := context.Background()

	rec, err := svc.Upload(ctx, 1, strings.NewReader("hello"), "Report 2.pdf", "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.StorageKey, "drive-uploads/"))
	assert.Equal(t, "Report 2.pdf", rec.OriginalName)
	assert.True(t, provider.Exists(rec.StorageKey))

	stored := users.files(1)
	assert.True(t, strings.HasPrefix(stored, `["drive-uploads/old",{`), "existing entries are kept verbatim: %s", stored)

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, rec.StorageKey, list[1].StorageKey)
}

func TestService_UploadRecordsURLForResourceKind(t *testing.T) {
	svc, _, _ := newTestService(t, `[]`, "https://cdn.example.com")
	ctx := context.Background()

	tests := []struct {
		name     string
		kind     storage.ResourceKind
		wantPath string
	}{
		{name: "photo.png", kind: storage.KindImage, wantPath: "/image/upload/drive-uploads/"},
		{name: "clip.MP4", kind: storage.KindVideo, wantPath: "/video/upload/drive-uploads/"},
		{name: "notes.pdf", kind: storage.KindRaw, wantPath: "/raw/upload/drive-uploads/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := svc.Upload(ctx, 1, strings.NewReader("x"), tt.name, "")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(rec.StorageURL, "https://cdn.example.com"+tt.wantPath), rec.StorageURL)

			resolved, err := svc.Resolve(ctx, 1, rec.StorageKey)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, resolved.Kind)
			assert.Equal(t, rec.StorageURL, resolved.URL)
		})
	}
}

func TestService_UploadUnknownUser(t *testing.T) {
	svc, _, provider := newTestService(t, `[]`, "")

	_, err := svc.Upload(context.Background(), 99, strings.NewReader("x"), "a.txt", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 0, provider.FileCount())
}

func TestService_UploadCleansUpWhenListUpdateFails(t *testing.T) {
	svc, users, provider := newTestService(t, `[]`, "")
	users.updateErr = errors.New("database is locked")

	_, err := svc.Upload(context.Background(), 1, strings.NewReader("x"), "a.txt", "")
	require.Error(t, err)
	assert.Equal(t, 0, provider.FileCount(), "orphaned object must be destroyed")
}

func TestService_DeleteRemovesLocallyAndRemotely(t *testing.T) {
	svc, users, provider := newTestService(t, `[]`, "")
	ctx := context.Background()

	rec, err := svc.Upload(ctx, 1, strings.NewReader("x"), "a.txt", "")
	require.NoError(t, err)

	res, err := svc.Delete(ctx, 1, rec.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{LocalRemoved: true, Remote: RemoteRemoved}, res)
	assert.False(t, provider.Exists(rec.StorageKey))
	assert.Equal(t, `[]`, users.files(1))
}

func TestService_DeleteRemoteFailureKeepsLocalRemoval(t *testing.T) {
	svc, users, provider := newTestService(t, `[{"filename":"drive-uploads/k1","originalName":"a.txt"},7]`, "")
	provider.FailDestroy = errors.New("provider unreachable")

	res, err := svc.Delete(context.Background(), 1, "drive-uploads/k1")
	require.NoError(t, err)
	assert.True(t, res.LocalRemoved)
	assert.Equal(t, RemoteFailed, res.Remote)
	assert.Equal(t, "provider unreachable", res.RemoteError)
	assert.Equal(t, `[7]`, users.files(1), "malformed entries survive, removal is not rolled back")
}

func TestService_DeleteAbsentKeySkipsRemote(t *testing.T) {
	svc, users, provider := newTestService(t, `["drive-uploads/mine"]`, "")
	provider.FailDestroy = errors.New("must not be called")

	res, err := svc.Delete(context.Background(), 1, "someone-elses-key")
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Remote: RemoteSkipped}, res)
	assert.Equal(t, `["drive-uploads/mine"]`, users.files(1))
}

func TestService_ResolveURLs(t *testing.T) {
	files := `[
		"drive-uploads/legacy.png",
		{"filename":"drive-uploads/img1","originalName":"cat.JPEG"},
		{"publicId":"drive-uploads/vid1","originalname":"clip.mov"},
		{"filename":"drive-uploads/doc1","originalName":"a.pdf","storageUrl":"https://stored.example.com/doc1"}
	]`
	svc, _, _ := newTestService(t, files, "https://cdn.example.com")
	ctx := context.Background()

	tests := []struct {
		id   string
		want string
	}{
		{"legacy.png", "https://cdn.example.com/raw/upload/drive-uploads/legacy.png"},
		{"drive-uploads/img1", "https://cdn.example.com/image/upload/drive-uploads/img1"},
		{"vid1", "https://cdn.example.com/video/upload/drive-uploads/vid1"},
		{"doc1", "https://stored.example.com/doc1"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := svc.Resolve(ctx, 1, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.URL)
		})
	}

	_, err := svc.Resolve(ctx, 1, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ResolveWithoutPublicURLStreams(t *testing.T) {
	svc, _, _ := newTestService(t, `[]`, "")
	ctx := context.Background()

	rec, err := svc.Upload(ctx, 1, strings.NewReader("streamed body"), "notes.txt", "text/plain")
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, 1, rec.StorageKey)
	require.NoError(t, err)
	assert.Empty(t, resolved.URL)

	rc, got, err := svc.Open(ctx, 1, TrimFolder(rec.StorageKey))
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "streamed body", string(body))
	assert.Equal(t, "notes.txt", got.OriginalName)
}

func TestService_OpenMissingObject(t *testing.T) {
	svc, _, _ := newTestService(t, `["drive-uploads/gone.txt"]`, "")

	_, _, err := svc.Open(context.Background(), 1, "gone.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_DestroyAll(t *testing.T) {
	svc, users, provider := newTestService(t, `[]`, "")
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := svc.Upload(ctx, 1, strings.NewReader(name), name, "")
		require.NoError(t, err)
	}
	u, _ := users.FindByID(ctx, 1)

	assert.Equal(t, 0, svc.DestroyAll(ctx, u))
	assert.Equal(t, 0, provider.FileCount())
}

func TestSortByName_Natural(t *testing.T) {
	records := []Record{{OriginalName: "file10.txt"}, {OriginalName: "file2.txt"}, {OriginalName: "file1.txt"}}
	SortByName(records)
	assert.Equal(t, "file1.txt", records[0].OriginalName)
	assert.Equal(t, "file2.txt", records[1].OriginalName)
	assert.Equal(t, "file10.txt", records[2].OriginalName)
}

func TestService_DeleteRefusesTargetsMatchingEveryEntry(t *testing.T) {
	const list = `["drive-uploads/k1",{"filename":"drive-uploads/k2.png","originalName":"a.png"}]`
	svc, users, _ := newTestService(t, list, "")

	for _, target := range []string{"drive-uploads", "drive-uploads/", "uploads", "/", ".", " ./ "} {
		t.Run(target, func(t *testing.T) {
			_, err := svc.Delete(context.Background(), 1, target)
			assert.ErrorIs(t, err, ErrBroadTarget)
			assert.Equal(t, list, users.files(1))
		})
	}

	res, err := svc.Delete(context.Background(), 1, "k1")
	require.NoError(t, err)
	assert.True(t, res.LocalRemoved)
}
