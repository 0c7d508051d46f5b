package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hitoshi/livebid/internal/model"
)

// FileSnapshotRepo はJSONファイルにスナップショットを保存するリポジトリ。
// 書き込みは一時ファイルへの出力とリネームで行い、途中状態のファイルを残さない。
type FileSnapshotRepo struct {
	path string
}

// NewFileSnapshotRepo はFileSnapshotRepoを生成する。
func NewFileSnapshotRepo(path string) *FileSnapshotRepo {
	return &FileSnapshotRepo{path: path}
}

// Path は保存先のファイルパスを返す。
func (r *FileSnapshotRepo) Path() string {
	return r.path
}

// Load は保存済みのスナップショットを返す。ファイルが存在しない場合はnilを返す。
func (r *FileSnapshotRepo) Load(_ context.Context) (*model.Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save はスナップショットを原子的に上書きする。
func (r *FileSnapshotRepo) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func decodeSnapshot(data []byte) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Users == nil {
		snap.Users = map[string]model.Identity{}
	}
	if snap.Items == nil {
		snap.Items = map[string]model.Item{}
	}
	return &snap, nil
}

// compile-time interface check
var _ SnapshotRepository = (*FileSnapshotRepo)(nil)
