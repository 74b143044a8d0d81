package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
)

// Extension of investigation files.
const Extension = ".pano"

var ErrEmptyPath = errors.New("empty path")

// Save writes inv to path. The file is replaced atomically, so a failed
// save never leaves a truncated document behind. Extension is appended
// when path has none. The path written to is returned.
func Save(ctx context.Context, path string, inv *model.Investigation) (string, error) {
	if path == "" {
		return "", helper.NewError("save investigation", ErrEmptyPath)
	}
	if inv == nil {
		return "", helper.NewError("save investigation", fmt.Errorf("investigation is nil"))
	}
	if filepath.Ext(path) == "" {
		path += Extension
	}

	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return "", helper.NewError("marshal investigation", err)
	}
	if err := ctx.Err(); err != nil {
		return "", helper.NewError("save investigation", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", helper.NewError("create temp file", err)
	}
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", helper.NewError("write investigation", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", helper.NewError("sync investigation", err)
	}
	if err := tmp.Close(); err != nil {
		return "", helper.NewError("close investigation", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", helper.NewError("replace investigation", err)
	}

	return path, nil
}

// Load reads an investigation document.
func Load(ctx context.Context, path string) (*model.Investigation, error) {
	if path == "" {
		return nil, helper.NewError("load investigation", ErrEmptyPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("load investigation", err)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, helper.NewError("read investigation", err)
	}

	var inv model.Investigation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, helper.NewError("decode investigation", err)
	}

	return &inv, nil
}
