// Package pathutil composes POSIX device-side paths from host-native path
// fragments.
package pathutil

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// AppendComponents appends the host-native tail to the POSIX base path.
// Only plain name segments are accepted: an absolute tail, a volume
// prefix, or any "." or ".." segment is an error, as is a segment that is
// not valid UTF-8. An empty tail returns base unchanged.
func AppendComponents(base, tail string) (string, error) {
	if tail == "" {
		return base, nil
	}
	if filepath.IsAbs(tail) || filepath.VolumeName(tail) != "" {
		return "", fmt.Errorf("pathutil: unexpected path component in %q", tail)
	}

	result := base
	for _, segment := range strings.Split(tail, string(filepath.Separator)) {
		switch segment {
		case "", ".", "..":
			return "", fmt.Errorf("pathutil: unexpected path component in %q", tail)
		}
		if !utf8.ValidString(segment) {
			return "", fmt.Errorf("pathutil: could not represent path segment as UTF-8")
		}
		result = path.Join(result, segment)
	}
	return result, nil
}
