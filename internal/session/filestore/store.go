// Package filestore keeps sessions as pretty-printed JSON files, one per
// session, under a base directory.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tabula/internal/session"
	"tabula/internal/utils"
	"tabula/internal/utils/id"
)

type store struct {
	baseDir string
	logger  *utils.Logger
}

// New creates a file-backed session store rooted at baseDir. A leading ~/
// expands to the user's home directory.
func New(baseDir string) session.Store {
	if strings.HasPrefix(baseDir, "~/") {
		home, _ := os.UserHomeDir()
		baseDir = filepath.Join(home, baseDir[2:])
	}
	_ = os.MkdirAll(baseDir, 0755) // Ignore error - directory may already exist
	return &store{
		baseDir: baseDir,
		logger:  utils.NewComponentLogger("SessionFileStore"),
	}
}

func (s *store) path(sessionID string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.json", sessionID))
}

func (s *store) Create(ctx context.Context) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess := &session.Session{
		ID:        id.NewSessionID(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, err
	}

	// Create file exclusively (fail if exists)
	f, err := os.OpenFile(s.path(sess.ID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create session file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write session: %w", err)
	}
	return sess, nil
}

func (s *store) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.path(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Error("Failed to decode session file %s: %v. Preview: %s", path, err, previewJSON(data))
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *store) Save(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session has no id")
	}

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a crash mid-save never truncates the session.
	tmp := s.path(sess.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(sess.ID))
}

func (s *store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	return ids, nil
}

func (s *store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.path(sessionID))
	// Ignore error if file doesn't exist - deletion goal achieved
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func previewJSON(data []byte) string {
	const maxPreview = 512
	preview := strings.TrimSpace(string(data))
	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "\t", " ")
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}
	return preview
}
