package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/agjmills/drive/internal/database/models"
	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/metrics"
	"github.com/agjmills/drive/internal/storage"
	"github.com/maruel/natural"
)

var (
	// ErrNotFound means the user's list holds no entry for the requested key.
	ErrNotFound = errors.New("file not found")
	// ErrUserNotFound means the owning account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrBroadTarget rejects delete targets that would match every entry.
	ErrBroadTarget = errors.New("delete target does not name a single file")
)

// RemoteStatus is the outcome of the best-effort provider destroy.
type RemoteStatus string

const (
	RemoteRemoved RemoteStatus = "removed"
	RemoteFailed  RemoteStatus = "failed"
	RemoteSkipped RemoteStatus = "skipped" // nothing was removed locally
)

// DeleteResult reports both phases of a delete. The local list is the
// source of truth; a failed remote phase is never rolled back.
type DeleteResult struct {
	LocalRemoved bool         `json:"localRemoved"`
	Remote       RemoteStatus `json:"remote"`
	RemoteError  string       `json:"-"`
}

// Resolved is a record plus the URL it should be delivered from. URL is
// empty when the content must be streamed through the application.
type Resolved struct {
	Record Record
	Kind   storage.ResourceKind
	URL    string
}

// UserStore is the subset of the credential store the reconciler needs.
type UserStore interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
}

// Service applies the reconciler to a user's stored list and the provider.
type Service struct {
	users    UserStore
	provider storage.Provider
	folder   string
	now      func() time.Time
}

func NewService(users UserStore, provider storage.Provider, folder string) *Service {
	return &Service{
		users:    users,
		provider: provider,
		folder:   folder,
		now:      time.Now,
	}
}

func (s *Service) load(ctx context.Context, userID uint) (*models.User, []Entry, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrUserNotFound
	}
	entries, err := ParseList(user.Files)
	if err != nil {
		return nil, nil, fmt.Errorf("user %d: %w", userID, err)
	}
	return user, entries, nil
}

func (s *Service) save(ctx context.Context, userID uint, entries []Entry) error {
	data, err := EncodeList(entries)
	if err != nil {
		return err
	}
	return s.users.UpdateFields(ctx, userID, map[string]any{"files": data})
}

// Records normalizes entries, skipping unrecoverable ones.
func Records(entries []Entry) []Record {
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		rec, err := Normalize(e)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// List returns the user's files in upload order.
func (s *Service) List(ctx context.Context, userID uint) ([]Record, error) {
	_, entries, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Records(entries), nil
}

// SortByName orders records by display name using natural ordering
// ("file2" before "file10").
func SortByName(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return natural.Less(records[i].OriginalName, records[j].OriginalName)
	})
}

// Upload stores content with the provider and appends the new entry to the
// user's list. The list update is read-modify-write; concurrent uploads for
// one user race with last-write-wins.
func (s *Service) Upload(ctx context.Context, userID uint, r io.Reader, originalName, contentType string) (Record, error) {
	// Fail before streaming the body to the provider for a deleted account.
	// The re-read below still decides what the append lands on.
	if _, _, err := s.load(ctx, userID); err != nil {
		return Record{}, err
	}

	res, err := s.provider.Upload(ctx, r, storage.UploadOptions{
		Folder:           s.folder,
		OriginalFilename: originalName,
		ContentType:      contentType,
		Kind:             Classify(originalName),
	})
	if err != nil {
		return Record{}, fmt.Errorf("provider upload: %w", err)
	}

	entry, err := NewEntry(res.Key, originalName, res.URL, s.now())
	if err != nil {
		return Record{}, err
	}

	// Re-read so the append applies to the freshest list.
	_, entries, err := s.load(ctx, userID)
	if err == nil {
		err = s.save(ctx, userID, append(entries, entry))
	}
	if err != nil {
		if derr := s.provider.Destroy(ctx, res.Key); derr != nil {
			logger.Warn("failed to clean up orphaned upload", "key", res.Key, "error", derr)
		}
		return Record{}, fmt.Errorf("record upload: %w", err)
	}

	metrics.RecordFileUpload(res.Size)
	logger.Info("file uploaded", "user_id", userID, "key", res.Key, "size", res.Size)

	rec, _ := Normalize(entry)
	return rec, nil
}

// Delete removes every entry matching key from the user's list, then asks
// the provider to destroy the removed objects. Provider failure is reported
// in the result, not as an error.
func (s *Service) Delete(ctx context.Context, userID uint, key string) (DeleteResult, error) {
	if s.broadTarget(key) {
		return DeleteResult{}, ErrBroadTarget
	}

	_, entries, err := s.load(ctx, userID)
	if err != nil {
		return DeleteResult{}, err
	}

	kept, removed := Remove(entries, key)
	if len(removed) == 0 {
		metrics.RecordFileDelete(string(RemoteSkipped))
		return DeleteResult{Remote: RemoteSkipped}, nil
	}

	if err := s.save(ctx, userID, kept); err != nil {
		return DeleteResult{}, fmt.Errorf("update file list: %w", err)
	}

	result := DeleteResult{LocalRemoved: true, Remote: RemoteRemoved}
	for _, rec := range Records(removed) {
		if err := s.provider.Destroy(ctx, rec.StorageKey); err != nil {
			result.Remote = RemoteFailed
			result.RemoteError = err.Error()
			logger.Error("remote delete failed; local record already removed",
				"user_id", userID, "key", rec.StorageKey, "error", err)
		}
	}

	metrics.RecordFileDelete(string(result.Remote))
	logger.Info("file deleted", "user_id", userID, "key", key, "removed", len(removed), "remote", result.Remote)
	return result, nil
}

// DestroyAll best-effort destroys every object in a user's list, returning
// the number of provider failures. Used when an account is removed.
func (s *Service) DestroyAll(ctx context.Context, user *models.User) int {
	entries, err := ParseList(user.Files)
	if err != nil {
		logger.Warn("cannot decode file list for removal", "user_id", user.ID, "error", err)
		return 0
	}
	failed := 0
	for _, rec := range Records(entries) {
		if err := s.provider.Destroy(ctx, rec.StorageKey); err != nil {
			failed++
			logger.Error("remote delete failed", "user_id", user.ID, "key", rec.StorageKey, "error", err)
		}
	}
	return failed
}

// broadTarget reports targets that, under containment matching, hit every
// folder-prefixed key: the folder itself, any piece of it, or bare dots and
// slashes.
func (s *Service) broadTarget(key string) bool {
	if strings.Trim(key, "./ ") == "" {
		return true
	}
	return s.folder != "" && strings.Contains(s.folder+"/", key)
}

// Resolve locates a file by identifier (bare or folder-prefixed) and picks
// its delivery URL: the stored URL if any, else the provider URL for the
// entry's resource kind. URL is empty when the provider has none.
func (s *Service) Resolve(ctx context.Context, userID uint, id string) (Resolved, error) {
	_, entries, err := s.load(ctx, userID)
	if err != nil {
		return Resolved{}, err
	}

	entry, ok := Find(entries, TrimFolder(id))
	if !ok {
		return Resolved{}, ErrNotFound
	}
	rec, err := Normalize(entry)
	if err != nil {
		return Resolved{}, ErrNotFound
	}

	resolved := Resolved{Record: rec, Kind: KindOf(entry), URL: rec.StorageURL}
	if resolved.URL != "" {
		return resolved, nil
	}

	url, err := s.provider.URL(ctx, rec.StorageKey, resolved.Kind)
	switch {
	case errors.Is(err, storage.ErrNoPublicURL):
		return resolved, nil
	case err != nil:
		return Resolved{}, fmt.Errorf("resolve url: %w", err)
	}
	resolved.URL = url
	return resolved, nil
}

// Open streams a file the caller owns.
func (s *Service) Open(ctx context.Context, userID uint, id string) (io.ReadCloser, Record, error) {
	_, entries, err := s.load(ctx, userID)
	if err != nil {
		return nil, Record{}, err
	}

	entry, ok := Find(entries, TrimFolder(id))
	if !ok {
		return nil, Record{}, ErrNotFound
	}
	rec, err := Normalize(entry)
	if err != nil {
		return nil, Record{}, ErrNotFound
	}

	rc, err := s.provider.Open(ctx, rec.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, Record{}, ErrNotFound
	}
	if err != nil {
		return nil, Record{}, err
	}
	return rc, rec, nil
}
