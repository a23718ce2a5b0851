package router

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/endpoints"
	infoEndpoints "github.com/prebid/prebid-server-admaru/endpoints/info"
	"github.com/prebid/prebid-server-admaru/endpoints/openrtb2"
	"github.com/prebid/prebid-server-admaru/errortypes"
	"github.com/prebid/prebid-server-admaru/exchange"
	"github.com/prebid/prebid-server-admaru/logger"
	metricsConf "github.com/prebid/prebid-server-admaru/metrics/config"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"github.com/prebid/prebid-server-admaru/server/ssl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
)

// Router is the main handler of the server. It also exposes the metrics engine so the
// admin and prometheus servers can be wired to it.
type Router struct {
	*httprouter.Router
	MetricsEngine *metricsConf.DetailedMetricsEngine
	Shutdown      func()
}

func getTransport(cfg *config.Configuration, certPool *x509.CertPool) *http.Transport {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxConnsPerHost: cfg.Client.MaxConnsPerHost,
		IdleConnTimeout: time.Duration(cfg.Client.IdleConnTimeout) * time.Second,
		TLSClientConfig: &tls.Config{RootCAs: certPool},
	}

	if cfg.Client.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.Client.MaxIdleConns
	}

	if cfg.Client.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Client.MaxIdleConnsPerHost
	}

	return transport
}

// New builds the bidders found in the configuration and registers every endpoint.
func New(cfg *config.Configuration) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}

	// For bid processing, we need both the system certificates and the certificates found in container's
	// local file system
	certPool := ssl.GetRootCAPool()
	var readCertErr error
	certPool, readCertErr = ssl.AppendPEMFileToRootCAPool(certPool, cfg.PemCertsFile)
	if readCertErr != nil {
		logger.Warnf("Could not read certificates file: %s", readCertErr.Error())
	}

	generalHttpClient := &http.Client{
		Transport: getTransport(cfg, certPool),
	}

	infoDirectory, err := filepath.Abs(cfg.BidderInfoPath)
	if err != nil {
		return nil, fmt.Errorf("invalid bidder info path %s: %v", cfg.BidderInfoPath, err)
	}
	bidderInfos, err := config.LoadBidderInfoFromDisk(infoDirectory)
	if err != nil {
		return nil, err
	}

	// Metrics engine
	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg, openrtb_ext.CoreBidderNames())

	bidders, adaptersErrs := exchange.BuildAdapters(generalHttpClient, cfg, bidderInfos, r.MetricsEngine)
	if len(adaptersErrs) > 0 {
		return nil, errortypes.NewAggregateErrors("Failed to initialize adapters", adaptersErrs)
	}
	activeBidders := exchange.GetActiveBidders(cfg.Adapters)

	r.POST("/openrtb2/bidders/:bidder", openrtb2.NewBidderEndpoint(bidders, cfg, r.MetricsEngine))
	r.GET("/info/bidders", infoEndpoints.NewBiddersEndpoint(activeBidders))
	r.GET("/info/bidders/:bidderName", infoEndpoints.NewBidderDetailsEndpoint(bidderInfos))
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))

	r.Shutdown = func() {
		generalHttpClient.CloseIdleConnections()
	}
	return r, nil
}

// PrometheusRegistry returns the registry of the prometheus engine, or nil when prometheus
// metrics are not configured.
func (r *Router) PrometheusRegistry() *prometheus.Registry {
	if r.MetricsEngine == nil || r.MetricsEngine.PrometheusMetrics == nil {
		return nil
	}
	return r.MetricsEngine.PrometheusMetrics.Registry
}

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// SupportCORS wraps the handler with CORS support for browser callers.
//
// AllowCredentials with a permissive origin check echoes the caller's Origin back instead of "*",
// which is what browsers require for credentialed requests.
// For more info, see:
//
// - https://github.com/rs/cors/issues/55
// - https://developer.mozilla.org/en-US/docs/Web/HTTP/CORS/Errors/CORSNotSupportingCredentials
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
