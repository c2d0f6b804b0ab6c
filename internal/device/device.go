// Package device provides the stable per-install device identifier used to
// tag every record this device writes to the remote store.
package device

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"time"

	"github.com/duetrack/duetrack/internal/kvstore"
)

const idKey = "deviceId"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// ID returns this install's device identifier, generating and persisting
// one on first call. The identifier is derived from the hostname, platform,
// and creation instant, sanitized to [a-zA-Z0-9-]. Unavailable metadata
// falls back to "unknown" fragments; only a kvstore persistence failure is
// an error.
func ID(kv *kvstore.Store) (string, error) {
	if id, ok := kv.Get(idKey); ok && id != "" {
		return id, nil
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}

	id := fmt.Sprintf("%s-%s-%s-%d", host, runtime.GOOS, runtime.GOARCH, time.Now().UnixMilli())
	id = unsafeChars.ReplaceAllString(id, "-")

	if err := kv.Set(idKey, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}
