package blocklist

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/smolgroot/skypier-blackhole/pkg/dnsname"
)

// customListMu serializes all reads/writes of any custom list file within
// this process, per spec.md §5 ("Custom list file: serialized by a
// process-wide mutex").
var customListMu sync.Mutex

// AddToCustomList appends the canonical form of name to path if not already
// present, via read-modify-rewrite with temp-file + rename. Returns whether
// the file was changed.
func AddToCustomList(path, name string) (bool, error) {
	canonical, err := dnsname.Normalize(name)
	if err != nil {
		return false, err
	}

	customListMu.Lock()
	defer customListMu.Unlock()

	lines, err := readLines(path)
	if err != nil {
		return false, err
	}

	for _, line := range lines {
		if canonicalLine(line) == canonical {
			return false, nil
		}
	}

	lines = append(lines, canonical)
	return true, rewriteFile(path, lines)
}

// RemoveFromCustomList removes any line whose canonical form equals name's
// canonical form. Returns whether the file was changed.
func RemoveFromCustomList(path, name string) (bool, error) {
	canonical, err := dnsname.Normalize(name)
	if err != nil {
		return false, err
	}

	customListMu.Lock()
	defer customListMu.Unlock()

	lines, err := readLines(path)
	if err != nil {
		return false, err
	}

	out := make([]string, 0, len(lines))
	changed := false
	for _, line := range lines {
		if canonicalLine(line) == canonical {
			changed = true
			continue
		}
		out = append(out, line)
	}

	if !changed {
		return false, nil
	}
	return true, rewriteFile(path, out)
}

// canonicalLine returns the canonical name a custom-list line represents, or
// "" if the line is blank, a comment, or invalid.
func canonicalLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	canonical, err := dnsname.Normalize(strings.TrimPrefix(trimmed, "*."))
	if err != nil {
		return ""
	}
	if strings.HasPrefix(trimmed, "*.") {
		return "*." + canonical
	}
	return canonical
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func rewriteFile(path string, lines []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".custom-list-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
