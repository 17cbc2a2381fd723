package vfs

import (
	"fmt"
	"strings"
)

// IsAbsolutePath reports whether p starts with "/" or a drive letter such as "C:/".
func IsAbsolutePath(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && isDriveLetter(p[0]) && p[1] == ':' && p[2] == '/'
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// NormalizePath returns the canonical form of an absolute path. Runs of
// separators collapse to one, "." segments are dropped and ".." segments
// remove their preceding sibling. Directories end with exactly one "/";
// files never do. When unc is set a leading "//" is preserved.
//
// Normalizing an already normalized path returns it unchanged.
func NormalizePath(p string, isDirectory, unc bool) (string, error) {
	if !IsAbsolutePath(p) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, p)
	}
	isUNC := unc && strings.HasPrefix(p, "//")

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	out = append(out, segments[0])
	for _, seg := range segments[1:] {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) < 2 {
				return "", fmt.Errorf("%w: %q escapes its root", ErrInvalidPath, p)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}

	if len(out) == 1 && !isDirectory {
		return "", fmt.Errorf("%w: %q names a root, not a file", ErrInvalidPath, p)
	}
	normalized := strings.Join(out, "/")
	if isDirectory {
		normalized += "/"
	}
	if isUNC {
		normalized = "/" + normalized
	}
	return normalized, nil
}

// splitPath derives the name and parent path of a normalized path. Roots
// have an empty parent.
func splitPath(p string) (name, parent string) {
	parts := strings.Split(p, "/")
	if strings.HasSuffix(p, "/") {
		parts = parts[:len(parts)-1]
	}
	name = parts[len(parts)-1]
	parts = parts[:len(parts)-1]
	if len(parts) == 0 {
		return name, ""
	}
	return name, strings.Join(parts, "/") + "/"
}

// isWithin reports whether p is dir itself or lies below it. dir must be a
// normalized directory path.
func isWithin(p, dir string) bool {
	return strings.HasPrefix(p, dir)
}

// overlaps reports whether two normalized directory paths share a subtree.
func overlaps(a, b string) bool {
	return isWithin(a, b) || isWithin(b, a)
}
