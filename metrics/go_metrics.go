package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	metrics "github.com/rcrowley/go-metrics"
)

// Metrics is the go-metrics backed MetricsEngine. Every meter is registered up front,
// so recording never touches the registry.
type Metrics struct {
	MetricsRegistry metrics.Registry

	RequestStatuses map[RequestType]map[RequestStatus]metrics.Meter
	RequestsTimer   map[RequestType]metrics.Timer

	ImpsTypeBanner metrics.Meter
	ImpsTypeVideo  metrics.Meter
	ImpsTypeAudio  metrics.Meter
	ImpsTypeNative metrics.Meter

	TimeoutNotificationSuccess metrics.Meter
	TimeoutNotificationFailure metrics.Meter
	BidderServerResponseTimer  metrics.Timer

	// AdapterMetrics is keyed by the lower case bidder name.
	AdapterMetrics map[string]*AdapterMetrics
}

// AdapterMetrics houses the metrics for a particular adapter
type AdapterMetrics struct {
	NoBidMeter     metrics.Meter
	GotBidsMeter   metrics.Meter
	RequestTimer   metrics.Timer
	PriceHistogram metrics.Histogram
	BidsReceived   map[openrtb_ext.BidType]*MarkupDeliveryMetrics
	ErrorMeters    map[AdapterError]metrics.Meter
}

// MarkupDeliveryMetrics counts bids by how their creative is delivered.
type MarkupDeliveryMetrics struct {
	AdmMeter  metrics.Meter
	NurlMeter metrics.Meter
}

// NewMetrics creates a new Metrics object with needed metrics defined. In time we may develop to the point
// where Metrics contains all the metrics we might want to record, and then we build the actual
// metrics object to contain only the metrics we are interested in tracking.
func NewMetrics(registry metrics.Registry, exchanges []openrtb_ext.BidderName) *Metrics {
	newMetrics := &Metrics{
		MetricsRegistry: registry,
		RequestStatuses: make(map[RequestType]map[RequestStatus]metrics.Meter),
		RequestsTimer:   make(map[RequestType]metrics.Timer),

		ImpsTypeBanner: metrics.GetOrRegisterMeter("imp_banner", registry),
		ImpsTypeVideo:  metrics.GetOrRegisterMeter("imp_video", registry),
		ImpsTypeAudio:  metrics.GetOrRegisterMeter("imp_audio", registry),
		ImpsTypeNative: metrics.GetOrRegisterMeter("imp_native", registry),

		TimeoutNotificationSuccess: metrics.GetOrRegisterMeter("timeout_notification.ok", registry),
		TimeoutNotificationFailure: metrics.GetOrRegisterMeter("timeout_notification.failed", registry),
		BidderServerResponseTimer:  metrics.GetOrRegisterTimer("bidder_server_response_time_seconds", registry),

		AdapterMetrics: make(map[string]*AdapterMetrics, len(exchanges)),
	}

	for _, rt := range RequestTypes() {
		newMetrics.RequestStatuses[rt] = make(map[RequestStatus]metrics.Meter)
		for _, rs := range RequestStatuses() {
			newMetrics.RequestStatuses[rt][rs] = metrics.GetOrRegisterMeter(fmt.Sprintf("requests.%s.%s", rs, rt), registry)
		}
		newMetrics.RequestsTimer[rt] = metrics.GetOrRegisterTimer(fmt.Sprintf("request_time.%s", rt), registry)
	}

	for _, a := range exchanges {
		newMetrics.AdapterMetrics[strings.ToLower(string(a))] = makeAdapterMetrics(registry, strings.ToLower(string(a)))
	}

	return newMetrics
}

func makeAdapterMetrics(registry metrics.Registry, adapterName string) *AdapterMetrics {
	am := &AdapterMetrics{
		NoBidMeter:     metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests.nobid", adapterName), registry),
		GotBidsMeter:   metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests.gotbids", adapterName), registry),
		RequestTimer:   metrics.GetOrRegisterTimer(fmt.Sprintf("adapter.%s.request_time", adapterName), registry),
		PriceHistogram: metrics.GetOrRegisterHistogram(fmt.Sprintf("adapter.%s.prices", adapterName), registry, metrics.NewExpDecaySample(1028, 0.015)),
		BidsReceived:   make(map[openrtb_ext.BidType]*MarkupDeliveryMetrics),
		ErrorMeters:    make(map[AdapterError]metrics.Meter),
	}
	for _, bidType := range openrtb_ext.BidTypes() {
		am.BidsReceived[bidType] = &MarkupDeliveryMetrics{
			AdmMeter:  metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.%s.adm_bids_received", adapterName, bidType), registry),
			NurlMeter: metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.%s.nurl_bids_received", adapterName, bidType), registry),
		}
	}
	for _, err := range AdapterErrors() {
		am.ErrorMeters[err] = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests.%s", adapterName, err), registry)
	}
	return am
}

// RecordRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordRequest(labels Labels) {
	if statuses, ok := me.RequestStatuses[labels.RType]; ok {
		if meter, ok := statuses[labels.RequestStatus]; ok {
			meter.Mark(1)
		}
	}
}

// RecordImps implements a part of the MetricsEngine interface
func (me *Metrics) RecordImps(labels ImpLabels) {
	if labels.BannerImps {
		me.ImpsTypeBanner.Mark(1)
	}
	if labels.VideoImps {
		me.ImpsTypeVideo.Mark(1)
	}
	if labels.AudioImps {
		me.ImpsTypeAudio.Mark(1)
	}
	if labels.NativeImps {
		me.ImpsTypeNative.Mark(1)
	}
}

// RecordRequestTime implements a part of the MetricsEngine interface. The calling code is responsible
// for determining the call duration.
func (me *Metrics) RecordRequestTime(labels Labels, length time.Duration) {
	// Only record times for successful requests, as we don't have labels to screen out bad requests.
	if labels.RequestStatus != RequestStatusOK {
		return
	}
	if timer, ok := me.RequestsTimer[labels.RType]; ok {
		timer.Update(length)
	}
}

// RecordAdapterRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordAdapterRequest(labels AdapterLabels) {
	am, ok := me.AdapterMetrics[strings.ToLower(string(labels.Adapter))]
	if !ok {
		return
	}

	switch labels.AdapterBids {
	case AdapterBidNone:
		am.NoBidMeter.Mark(1)
	case AdapterBidPresent:
		am.GotBidsMeter.Mark(1)
	}

	for errType := range labels.AdapterErrors {
		if meter, ok := am.ErrorMeters[errType]; ok {
			meter.Mark(1)
		}
	}
}

// RecordAdapterBidReceived implements a part of the MetricsEngine interface.
// This tracks how many bids from each Bidder use `adm` vs. `nurl.
func (me *Metrics) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	am, ok := me.AdapterMetrics[strings.ToLower(string(labels.Adapter))]
	if !ok {
		return
	}

	// Adapter metrics exist for every bid type we know about
	if delivery, ok := am.BidsReceived[bidType]; ok {
		if hasAdm {
			delivery.AdmMeter.Mark(1)
		} else {
			delivery.NurlMeter.Mark(1)
		}
	}
}

// RecordAdapterPrice implements a part of the MetricsEngine interface. Generates a histogram of winning bid prices
func (me *Metrics) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	if am, ok := me.AdapterMetrics[strings.ToLower(string(labels.Adapter))]; ok {
		// Histograms only track int64s, so prices are recorded in thousandths of a currency unit.
		am.PriceHistogram.Update(int64(cpm * 1000))
	}
}

// RecordAdapterTime implements a part of the MetricsEngine interface. Records the adapter response time
func (me *Metrics) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	if len(labels.AdapterErrors) != 0 {
		return
	}
	if am, ok := me.AdapterMetrics[strings.ToLower(string(labels.Adapter))]; ok {
		am.RequestTimer.Update(length)
	}
}

// RecordTimeoutNotice implements a part of the MetricsEngine interface to track timeout notice successes
func (me *Metrics) RecordTimeoutNotice(success bool) {
	if success {
		me.TimeoutNotificationSuccess.Mark(1)
	} else {
		me.TimeoutNotificationFailure.Mark(1)
	}
}

// RecordBidderServerResponseTime implements a part of the MetricsEngine interface
func (me *Metrics) RecordBidderServerResponseTime(bidderServerResponseTime time.Duration) {
	me.BidderServerResponseTimer.Update(bidderServerResponseTime)
}
