package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCredentials(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write credentials file: %v", err)
	}
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("Failed to chmod credentials file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeCredentials(t, `token = shared

[ACME]
token    = acme-token
username = acme-admin

[globex]
password = hunter2
`, 0o600)

	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	tests := []struct {
		org     string
		kind    Kind
		want    string
		wantErr error
	}{
		{"acme", KindToken, "acme-token", nil},
		{"Acme", KindUsername, "acme-admin", nil},
		{"globex", KindToken, "shared", nil},
		{"globex", KindPassword, "hunter2", nil},
		{"initech", KindToken, "shared", nil},
		{"initech", KindOTP, "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.org+"/"+string(tt.kind), func(t *testing.T) {
			got, err := src.Lookup(tt.org, tt.kind)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Lookup() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Lookup() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	src, err := LoadFile(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Expected a missing file to be an empty source, got %v", err)
	}
	if _, err := src.Lookup("acme", KindToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoadFile_Insecure(t *testing.T) {
	path := writeCredentials(t, "token = x\n", 0o644)

	_, err := LoadFile(path)
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if authErr.Type != ErrorTypeInsecureFile {
		t.Errorf("Expected insecure file error, got %s", authErr.Type)
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeCredentials(t, "[acme\ntoken = x\n", 0o600)

	_, err := LoadFile(path)
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if authErr.Type != ErrorTypeInvalidFile {
		t.Errorf("Expected invalid file error, got %s", authErr.Type)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")

	if err := Save(path, "acme", map[Kind]string{KindToken: "t1", KindUsername: "admin"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := Save(path, "globex", map[Kind]string{KindToken: "t2"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected mode 0600, got %#o", perm)
	}

	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if v, _ := src.Lookup("acme", KindUsername); v != "admin" {
		t.Errorf("Expected saved username, got %q", v)
	}
	if v, _ := src.Lookup("globex", KindToken); v != "t2" {
		t.Errorf("Expected saved token, got %q", v)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ""},
		{"permission", &os.PathError{Op: "open", Path: "/c", Err: os.ErrPermission}, ErrorTypePermissionDenied},
		{"missing", &os.PathError{Op: "open", Path: "/c", Err: os.ErrNotExist}, ErrorTypeCredentialsAccess},
		{"already classified", &Error{Type: ErrorTypeInsecureFile}, ErrorTypeInsecureFile},
		{"other", errors.New("boom"), ErrorTypeCredentialsAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("Expected nil, got %v", got)
				}
				return
			}
			if got.Type != tt.want {
				t.Errorf("ClassifyError() type = %s, want %s", got.Type, tt.want)
			}
		})
	}
}
