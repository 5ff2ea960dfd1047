// Package imagestore saves uploaded photos on local disk and serves them back
// by the collision-free name it assigned.
package imagestore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
)

// URLPrefix is the public path the files are served under.
const URLPrefix = "/api/files/"

var extPattern = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,10}$`)

type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// validName rejects anything that could name a path outside the store.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) {
		return false
	}
	return true
}

// Save writes the upload under a fresh uuid name keeping a sanitized
// extension of the original name, and returns its public URL. An empty
// upload stores nothing and returns "".
func (s *Store) Save(u *model.Upload) (string, error) {
	if u.Empty() {
		return "", nil
	}
	// only the extension of the client's name survives
	original := filepath.Base(strings.ReplaceAll(strings.TrimSpace(u.Filename), `\`, "/"))
	if original == "." || original == ".." || original == "/" {
		original = "image"
	}
	if !validName(original) {
		return "", errs.Validation("invalid file name")
	}
	ext := filepath.Ext(original)
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	name := uuid.NewString() + strings.ToLower(ext)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("imagestore: mkdir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("imagestore: create: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(u.Data)); err != nil {
		f.Close()
		return "", fmt.Errorf("imagestore: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("imagestore: close: %w", err)
	}
	return URLPrefix + name, nil
}

// Path resolves a stored file name to its location on disk. Stored names are
// uuid based, so anything containing ".." is refused outright.
func (s *Store) Path(name string) (string, error) {
	if !validName(name) || strings.Contains(name, "..") {
		return "", errs.Validation("invalid file name")
	}
	p := filepath.Join(s.dir, name)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", errs.NotFound("file not found")
		}
		return "", err
	}
	return p, nil
}
