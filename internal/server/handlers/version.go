package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/tripfx/tripfx/internal/appid"
	"github.com/tripfx/tripfx/internal/core"
)

// Build metadata, injected from main via SetVersionInfo.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
	appIdentity  *appid.Identity
)

// SetVersionInfo sets the build metadata reported by /version.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// SetAppIdentity sets the name and description reported by /version.
func SetAppIdentity(identity *appid.Identity) {
	appIdentity = identity
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
	// Currencies lists the base currencies a recommendation may use.
	Currencies []string `json:"currencies"`
}

// AppInfo describes the build.
type AppInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
	Commit      string `json:"git_commit"`
	BuildDate   string `json:"build_date"`
	GoVersion   string `json:"go_version,omitempty"`
}

// DepInfo carries the gofulmen and crucible versions compiled in.
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo describes the host process.
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler reports build, dependency and runtime details.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	identity := appIdentity
	if identity == nil {
		identity, _ = appid.Get(r.Context())
	}
	deps := crucible.GetVersion()

	writeHealthJSON(w, VersionResponse{
		App: AppInfo{
			Name:        identity.BinaryName,
			Description: identity.Description,
			Version:     AppVersion,
			Commit:      AppCommit,
			BuildDate:   AppBuildDate,
			GoVersion:   runtime.Version(),
		},
		Dependencies: DepInfo{Gofulmen: deps.Gofulmen, Crucible: deps.Crucible},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
		Currencies: core.MajorCurrencies,
	})
}
