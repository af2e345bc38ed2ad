package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Unset and empty variables take the default. So do values that fail to
// parse; Validate catches the ones that matter.

func envString(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int { return envParse(k, def, cast.ToIntE) }

func envFloat(k string, def float64) float64 { return envParse(k, def, cast.ToFloat64E) }

func envDuration(k string, def time.Duration) time.Duration {
	return envParse(k, def, cast.ToDurationE)
}

func envParse[T any](k string, def T, conv func(any) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	out, err := conv(v)
	if err != nil {
		return def
	}
	return out
}

// envBool accepts 1/0, true/false, yes/no, y/n and on/off in any case.
func envBool(k string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

// envList splits a comma-separated variable, dropping blank items.
func envList(k string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(k), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// blank means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
