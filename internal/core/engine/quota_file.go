package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tripfx/tripfx/internal/core"
)

// FileQuotaStore keeps quota state in a JSON file. Writes go to a temporary
// file in the same directory which is then renamed over the target, so a
// reader never observes a partially written file.
type FileQuotaStore struct {
	Path string
}

type quotaFile struct {
	Providers map[string]core.ProviderQuotaState `json:"providers"`
}

// ReadQuotaState loads state from disk. A missing file yields empty state.
func (f *FileQuotaStore) ReadQuotaState(ctx context.Context) (map[string]core.ProviderQuotaState, error) {
	if f == nil || strings.TrimSpace(f.Path) == "" {
		return nil, errors.New("quota file path is required")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]core.ProviderQuotaState{}, nil
		}
		return nil, fmt.Errorf("read quota file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]core.ProviderQuotaState{}, nil
	}

	var payload quotaFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode quota file: %w", err)
	}
	if payload.Providers == nil {
		payload.Providers = map[string]core.ProviderQuotaState{}
	}
	return payload.Providers, nil
}

// WriteQuotaState atomically replaces the state file.
func (f *FileQuotaStore) WriteQuotaState(ctx context.Context, states map[string]core.ProviderQuotaState) (err error) {
	if f == nil || strings.TrimSpace(f.Path) == "" {
		return errors.New("quota file path is required")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(quotaFile{Providers: states}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode quota file: %w", err)
	}

	dir := filepath.Dir(filepath.Clean(f.Path))
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create quota directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".quota-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp quota file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp quota file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp quota file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp quota file: %w", err)
	}
	if err = os.Rename(tmpPath, f.Path); err != nil {
		return fmt.Errorf("replace quota file: %w", err)
	}
	return nil
}
