// Package buildinfo reports the version the scribe binary was built from.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// ServiceName identifies this binary in logs, metrics and /version.
const ServiceName = "scribe"

// These vars are set at build time via ldflags:
// -X github.com/otherjamesbrown/interview-scribe/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/interview-scribe/pkg/buildinfo.Commit=4e1c2aa
// -X github.com/otherjamesbrown/interview-scribe/pkg/buildinfo.BuildTime=2026-10-01T09:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information.
type Info struct {
	ServiceName string `json:"service_name" yaml:"service_name"`
	Version     string `json:"version" yaml:"version"`
	Commit      string `json:"commit" yaml:"commit"`
	BuildTime   string `json:"build_time" yaml:"build_time"`
	GoVersion   string `json:"go_version" yaml:"go_version"`
	Platform    string `json:"platform" yaml:"platform"`
}

// Get returns build info under the given name.
func Get(serviceName string) Info {
	return Info{
		ServiceName: serviceName,
		Version:     Version,
		Commit:      Commit,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a human-readable one-liner like "v0.3.0 (4e1c2aa, 2026-10-01T09:00:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// Handler returns an HTTP handler that responds with build info JSON.
func Handler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Get(serviceName))
	}
}
