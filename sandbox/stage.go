package sandbox

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Staged is a script materialized in a request-scoped directory.
type Staged struct {
	Dir        string
	ScriptPath string
	ScriptFile string

	fs     FileSystem
	logger *zap.Logger
}

// Stage writes script into a fresh temporary directory under the language's
// script file name. The caller must defer Cleanup.
func Stage(logger *zap.Logger, fs FileSystem, lang Language, script string) (*Staged, error) {
	if fs == nil {
		fs = RealFileSystem{}
	}

	dir, err := fs.MkdirTemp("", "plotbox-stage-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	staged := &Staged{
		Dir:        dir,
		ScriptPath: filepath.Join(dir, lang.ScriptFile),
		ScriptFile: lang.ScriptFile,
		fs:         fs,
		logger:     logger,
	}

	// The container user may differ from ours; the script only needs to be readable.
	if err := fs.Chmod(dir, DirPermission); err != nil {
		_ = staged.Cleanup()
		return nil, fmt.Errorf("failed to chmod staging dir: %w", err)
	}
	if err := fs.WriteFile(staged.ScriptPath, []byte(script), ScriptPermission); err != nil {
		_ = staged.Cleanup()
		return nil, fmt.Errorf("failed to write script: %w", err)
	}

	return staged, nil
}

// Cleanup removes the staging directory.
func (s *Staged) Cleanup() error {
	if err := s.fs.RemoveAll(s.Dir); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to remove staging directory", zap.String("path", s.Dir), zap.Error(err))
		}
		return fmt.Errorf("failed to remove staging dir: %w", err)
	}
	return nil
}
