package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// FileSource reads credentials from an INI file with one section per
// organization. Keys outside any section apply to every organization.
//
//	token = ghp_shared
//
//	[acme]
//	token    = ghp_acme
//	username = acme-admin
//	password = s3cret
type FileSource struct {
	file *ini.File
}

// LoadFile loads a credentials file. A missing file is an empty source. The
// file must not be readable by group or others.
func LoadFile(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return &FileSource{file: ini.Empty()}, nil
	}
	if err != nil {
		return nil, ClassifyError(err)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, &Error{
			Type:    ErrorTypeInsecureFile,
			Message: fmt.Sprintf("credentials file %s has mode %#o", path, perm),
			TroubleshootingSteps: []string{
				fmt.Sprintf("Run: chmod 600 %s", path),
			},
		}
	}

	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		if isFileSystemError(err) {
			return nil, ClassifyError(err)
		}
		return nil, &Error{
			Type:          ErrorTypeInvalidFile,
			Message:       fmt.Sprintf("failed to parse credentials file %s: %v", path, err),
			OriginalError: err,
		}
	}
	return &FileSource{file: f}, nil
}

// Lookup implements Source
func (s *FileSource) Lookup(org string, kind Kind) (string, error) {
	for _, name := range []string{org, ini.DefaultSection} {
		if !s.file.HasSection(name) {
			continue
		}
		sec := s.file.Section(name)
		if !sec.HasKey(string(kind)) {
			continue
		}
		if v := strings.TrimSpace(sec.Key(string(kind)).String()); v != "" {
			return v, nil
		}
	}
	return "", ErrNotFound
}

// Save writes credentials for org into the file at path, creating it with
// owner-only permissions
func Save(path, org string, values map[Kind]string) error {
	src, err := LoadFile(path)
	if err != nil {
		return err
	}

	sec := src.file.Section(org)
	for kind, v := range values {
		sec.Key(string(kind)).SetValue(v)
	}

	if err := src.file.SaveTo(path); err != nil {
		return ClassifyError(err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return ClassifyError(err)
	}
	return nil
}
