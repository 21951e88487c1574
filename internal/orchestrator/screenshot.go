// internal/orchestrator/screenshot.go
package orchestrator

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

const maxScreenshotName = 80

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// screenshotPath names a screenshot after the target's host and path,
// prefixed with the first eight characters of the run id.
func screenshotPath(dir, target, runID string) string {
	name := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		name = u.Host + u.Path
	}
	name = strings.Trim(unsafeNameChars.ReplaceAllString(name, "_"), "_.")
	if name == "" {
		name = "page"
	}
	if len(name) > maxScreenshotName {
		name = name[:maxScreenshotName]
	}
	prefix := runID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	if prefix != "" {
		name = prefix + "_" + name
	}
	return filepath.Join(dir, name+".png")
}
