package sources

import (
	"fmt"
	"path"
	"regexp"
	"sync"
	"time"
)

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func compileVersionPattern(expr string) (*regexp.Regexp, error) {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("version pattern %q: %w", expr, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("version pattern %q needs a capture group", expr)
	}
	patternCache[expr] = re
	return re, nil
}

// ExtractVersion applies the declaration's pattern to the file name and falls
// back to the modification date as YYYYMMDD.
func ExtractVersion(d Declaration, key string, modified time.Time) string {
	if d.VersionPattern != "" {
		if re, err := compileVersionPattern(d.VersionPattern); err == nil {
			if m := re.FindStringSubmatch(path.Base(key)); len(m) > 1 && m[1] != "" {
				return m[1]
			}
		}
	}
	if modified.IsZero() {
		return "unknown"
	}
	return modified.UTC().Format("20060102")
}
