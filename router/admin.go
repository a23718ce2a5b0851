package router

import (
	"net/http"
	"net/http/pprof"

	"github.com/prebid/prebid-server-admaru/endpoints"
)

// Admin returns the handler of the admin server: the build version and the pprof profiles.
// It listens on a separate port which should not be exposed publicly.
func Admin(version, revision string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", endpoints.NewVersionEndpoint(version, revision))

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
