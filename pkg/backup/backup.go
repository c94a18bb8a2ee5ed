package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

const (
	namePrefix = "backup-"
	nameLayout = "20060102-150405"
)

// BackupData is one snapshot. Sections hold the exported records keyed by
// kind, e.g. "channels" and "messages".
type BackupData struct {
	Version   string                     `json:"version"`
	Timestamp time.Time                  `json:"timestamp"`
	Sections  map[string]json.RawMessage `json:"sections"`
	Metadata  map[string]interface{}     `json:"metadata,omitempty"`
}

// SetSection encodes v under name.
func (d *BackupData) SetSection(name string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal section %s: %w", name, err)
	}
	if d.Sections == nil {
		d.Sections = make(map[string]json.RawMessage)
	}
	d.Sections[name] = raw
	return nil
}

// Section decodes the named section into v. A missing section leaves v as is.
func (d *BackupData) Section(name string, v interface{}) error {
	raw, ok := d.Sections[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal section %s: %w", name, err)
	}
	return nil
}

type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

type BackupService struct {
	storage Storage
	version string
	now     func() time.Time
}

func NewBackupService(storage Storage, version string) *BackupService {
	return &BackupService{
		storage: storage,
		version: version,
		now:     time.Now,
	}
}

// CreateBackup stamps data and stores it under a name that sorts by time.
func (bs *BackupService) CreateBackup(ctx context.Context, data *BackupData) (string, error) {
	data.Version = bs.version
	data.Timestamp = bs.now().UTC()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup data: %w", err)
	}

	name := namePrefix + data.Timestamp.Format(nameLayout) + ".json"
	if err := bs.storage.Save(ctx, name, bytes.NewReader(jsonData)); err != nil {
		return "", fmt.Errorf("failed to save backup: %w", err)
	}
	return name, nil
}

func (bs *BackupService) RestoreBackup(ctx context.Context, name string) (*BackupData, error) {
	reader, err := bs.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	defer reader.Close()

	var data BackupData
	if err := json.NewDecoder(reader).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup data: %w", err)
	}
	if data.Version == "" {
		return nil, fmt.Errorf("invalid backup %s: missing version", name)
	}
	return &data, nil
}

// ListBackups returns backup names oldest first.
func (bs *BackupService) ListBackups(ctx context.Context) ([]string, error) {
	names, err := bs.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns the newest backup name, or "" when there is none.
func (bs *BackupService) Latest(ctx context.Context) (string, error) {
	names, err := bs.ListBackups(ctx)
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[len(names)-1], nil
}

func (bs *BackupService) DeleteBackup(ctx context.Context, name string) error {
	return bs.storage.Delete(ctx, name)
}

// Prune deletes backups taken before cutoff and returns how many went.
func (bs *BackupService) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	names, err := bs.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, name := range names {
		ts, ok := BackupTime(name)
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if err := bs.storage.Delete(ctx, name); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", name, err)
		}
		deleted++
	}
	return deleted, nil
}

// BackupTime parses the timestamp out of a backup name.
func BackupTime(name string) (time.Time, bool) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), ".json")
	ts, err := time.Parse(nameLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
