package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrLeadingHyphen = errors.New("filename cannot start with hyphen")
)

// IsReservedName reports whether stem (a file name without extension) is a
// device name Windows refuses to create: CON, PRN, AUX, NUL, COM1-9, LPT1-9.
func IsReservedName(stem string) bool {
	stem = strings.ToLower(stem)
	switch stem {
	case "con", "prn", "aux", "nul":
		return true
	}
	if len(stem) == 4 && (strings.HasPrefix(stem, "com") || strings.HasPrefix(stem, "lpt")) {
		return stem[3] >= '1' && stem[3] <= '9'
	}
	return false
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ValidateSavePath accepts relative paths that stay below the working
// directory and end in a portable file name.
func ValidateSavePath(path string) error {
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}
	if strings.Contains(path, "..") {
		return ErrPathTraversal
	}

	base := filepath.Base(filepath.Clean(path))
	switch {
	case IsReservedName(stem(base)):
		return ErrReservedName
	case strings.HasPrefix(base, "-"):
		return ErrLeadingHyphen
	}
	return nil
}

var unsafeFilenameChars = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-",
	"*", "", "?", "", "\"", "",
	"<", "", ">", "", "|", "", "\x00", "",
)

// SanitizeFilename turns an artifact name into something safe to write,
// e.g. "../edited:1.png" becomes "edited-1.png".
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.Replace(name)
	name = strings.TrimLeft(name, ".-")
	name = strings.TrimRight(name, ". ")

	if name == "" {
		return "file"
	}
	if IsReservedName(stem(name)) {
		name += "_"
	}
	return name
}

// ResolveOutputPath joins a user supplied relative name onto dir after
// validating it. An empty dir keeps the name relative to the working directory.
func ResolveOutputPath(dir, name string) (string, error) {
	if err := ValidateSavePath(name); err != nil {
		return "", fmt.Errorf("invalid output path %q: %w", name, err)
	}
	if dir == "" {
		return filepath.Clean(name), nil
	}
	return filepath.Join(dir, name), nil
}
