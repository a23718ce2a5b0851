package prometheusmetrics

import (
	"strconv"
	"time"

	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/metrics"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
type Metrics struct {
	Registry *prometheus.Registry

	// General Metrics
	impressions               *prometheus.CounterVec
	requests                  *prometheus.CounterVec
	requestsTimer             *prometheus.HistogramVec
	timeoutNotifications      *prometheus.CounterVec
	bidderServerResponseTimer prometheus.Histogram

	// Adapter Metrics
	adapterBids          *prometheus.CounterVec
	adapterErrors        *prometheus.CounterVec
	adapterPrices        *prometheus.HistogramVec
	adapterRequests      *prometheus.CounterVec
	adapterRequestsTimer *prometheus.HistogramVec
}

const (
	adapterErrorLabel   = "adapter_error"
	adapterLabel        = "adapter"
	bidTypeLabel        = "bid_type"
	hasBidsLabel        = "has_bids"
	isAudioLabel        = "audio"
	isBannerLabel       = "banner"
	isNativeLabel       = "native"
	isVideoLabel        = "video"
	markupDeliveryLabel = "delivery"
	requestStatusLabel  = "request_status"
	requestTypeLabel    = "request_type"
	successLabel        = "success"
)

const (
	markupDeliveryAdm  = "adm"
	markupDeliveryNurl = "nurl"
)

const (
	requestSuccessful = "ok"
	requestFailed     = "failed"
)

// NewMetrics initializes a new Prometheus metrics instance with preloaded label values.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	standardTimeBuckets := []float64{0.05, 0.1, 0.15, 0.20, 0.25, 0.3, 0.4, 0.5, 0.75, 1}
	priceBuckets := []float64{250, 500, 750, 1000, 1500, 2000, 2500, 3000, 3500, 4000}

	metrics := Metrics{}
	metrics.Registry = prometheus.NewRegistry()

	metrics.impressions = newCounter(cfg, metrics.Registry,
		"impressions_requests",
		"Count of requested impressions to Prebid Server labeled by type.",
		[]string{isBannerLabel, isVideoLabel, isAudioLabel, isNativeLabel})

	metrics.requests = newCounter(cfg, metrics.Registry,
		"requests",
		"Count of total requests to Prebid Server labeled by type and status.",
		[]string{requestTypeLabel, requestStatusLabel})

	metrics.requestsTimer = newHistogramVec(cfg, metrics.Registry,
		"request_time_seconds",
		"Seconds to resolve successful Prebid Server requests labeled by type.",
		[]string{requestTypeLabel},
		standardTimeBuckets)

	metrics.timeoutNotifications = newCounter(cfg, metrics.Registry,
		"timeout_notification",
		"Count of timeout notifications triggered, and if they were successfully sent.",
		[]string{successLabel})

	metrics.bidderServerResponseTimer = newHistogram(cfg, metrics.Registry,
		"bidder_server_response_time_seconds",
		"Duration needed to send HTTP request and receive response back from bidder server.",
		standardTimeBuckets)

	metrics.adapterBids = newCounter(cfg, metrics.Registry,
		"adapter_bids",
		"Count of bids labeled by adapter, bid type and markup delivery type (adm or nurl).",
		[]string{adapterLabel, bidTypeLabel, markupDeliveryLabel})

	metrics.adapterErrors = newCounter(cfg, metrics.Registry,
		"adapter_errors",
		"Count of errors labeled by adapter and error type.",
		[]string{adapterLabel, adapterErrorLabel})

	metrics.adapterPrices = newHistogramVec(cfg, metrics.Registry,
		"adapter_prices",
		"Monetary value of the bids labeled by adapter.",
		[]string{adapterLabel},
		priceBuckets)

	metrics.adapterRequests = newCounter(cfg, metrics.Registry,
		"adapter_requests",
		"Count of requests labeled by adapter and if they contain bids.",
		[]string{adapterLabel, hasBidsLabel})

	metrics.adapterRequestsTimer = newHistogramVec(cfg, metrics.Registry,
		"adapter_request_time_seconds",
		"Seconds to resolve each successful request labeled by adapter.",
		[]string{adapterLabel},
		standardTimeBuckets)

	preloadLabelValues(&metrics)

	return &metrics
}

func newCounter(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounterVec(opts, labels)
	registry.MustRegister(counter)
	return counter
}

func newHistogramVec(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogramVec(opts, labels)
	registry.MustRegister(histogram)
	return histogram
}

func newHistogram(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, buckets []float64) prometheus.Histogram {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogram(opts)
	registry.MustRegister(histogram)
	return histogram
}

func (m *Metrics) RecordRequest(labels metrics.Labels) {
	m.requests.With(prometheus.Labels{
		requestTypeLabel:   string(labels.RType),
		requestStatusLabel: string(labels.RequestStatus),
	}).Inc()
}

func (m *Metrics) RecordImps(labels metrics.ImpLabels) {
	m.impressions.With(prometheus.Labels{
		isBannerLabel: strconv.FormatBool(labels.BannerImps),
		isVideoLabel:  strconv.FormatBool(labels.VideoImps),
		isAudioLabel:  strconv.FormatBool(labels.AudioImps),
		isNativeLabel: strconv.FormatBool(labels.NativeImps),
	}).Inc()
}

func (m *Metrics) RecordRequestTime(labels metrics.Labels, length time.Duration) {
	if labels.RequestStatus == metrics.RequestStatusOK {
		m.requestsTimer.With(prometheus.Labels{
			requestTypeLabel: string(labels.RType),
		}).Observe(length.Seconds())
	}
}

func (m *Metrics) RecordAdapterRequest(labels metrics.AdapterLabels) {
	m.adapterRequests.With(prometheus.Labels{
		adapterLabel: string(labels.Adapter),
		hasBidsLabel: strconv.FormatBool(labels.AdapterBids == metrics.AdapterBidPresent),
	}).Inc()

	for err := range labels.AdapterErrors {
		m.adapterErrors.With(prometheus.Labels{
			adapterLabel:      string(labels.Adapter),
			adapterErrorLabel: string(err),
		}).Inc()
	}
}

func (m *Metrics) RecordAdapterBidReceived(labels metrics.AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	markupDelivery := markupDeliveryNurl
	if hasAdm {
		markupDelivery = markupDeliveryAdm
	}

	m.adapterBids.With(prometheus.Labels{
		adapterLabel:        string(labels.Adapter),
		bidTypeLabel:        string(bidType),
		markupDeliveryLabel: markupDelivery,
	}).Inc()
}

func (m *Metrics) RecordAdapterPrice(labels metrics.AdapterLabels, cpm float64) {
	m.adapterPrices.With(prometheus.Labels{
		adapterLabel: string(labels.Adapter),
	}).Observe(cpm)
}

func (m *Metrics) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
	if len(labels.AdapterErrors) == 0 {
		m.adapterRequestsTimer.With(prometheus.Labels{
			adapterLabel: string(labels.Adapter),
		}).Observe(length.Seconds())
	}
}

func (m *Metrics) RecordTimeoutNotice(success bool) {
	if success {
		m.timeoutNotifications.With(prometheus.Labels{
			successLabel: requestSuccessful,
		}).Inc()
	} else {
		m.timeoutNotifications.With(prometheus.Labels{
			successLabel: requestFailed,
		}).Inc()
	}
}

func (m *Metrics) RecordBidderServerResponseTime(bidderServerResponseTime time.Duration) {
	m.bidderServerResponseTimer.Observe(bidderServerResponseTime.Seconds())
}
