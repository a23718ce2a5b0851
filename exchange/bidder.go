package exchange

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-server-admaru/adapters"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/errortypes"
	"github.com/prebid/prebid-server-admaru/logger"
	"github.com/prebid/prebid-server-admaru/metrics"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"github.com/prebid/prebid-server-admaru/util"
	"github.com/prebid/prebid-server-admaru/util/jsonutil"
	"golang.org/x/net/context/ctxhttp"
)

// AdaptedBidder defines the contract needed to participate in an Auction within an Exchange.
//
// This interface exists to help segregate core auction logic.
//
// Any logic which can be done _within a single Seat_ goes inside one of these.
// Any logic which _requires responses from all Seats_ goes inside the Exchange.
//
// This interface differs from adapters.Bidder to help minimize code duplication across the
// adapters.Bidder implementations.
type AdaptedBidder interface {
	// RequestBid fetches bids for the given request.
	//
	// An AdaptedBidder *may* return two non-nil values here. Errors should describe situations which
	// make the bid (or no-bid) "less than ideal." Common examples include:
	//
	// 1. Connection issues.
	// 2. Imps with Media Types which this Bidder doesn't support.
	// 3. The Context timeout expired before all expected bids were returned.
	// 4. The Server sent back an unexpected Response, so some bids were ignored.
	//
	// Any errors will be user-facing in the API.
	// Error messages should help publishers understand what might account for "bad" bids.
	RequestBid(ctx context.Context, request *openrtb2.BidRequest, reqInfo *adapters.ExtraRequestInfo, debug bool) (*SeatBid, []error)
}

// SeatBid is the bids returned by one bidder for one request, in the bidder's currency.
type SeatBid struct {
	// Bids is the list of bids which this AdaptedBidder wishes to make.
	Bids []*adapters.TypedBid
	// Currency is the currency in which the bids are made.
	// Should be a valid currency ISO code.
	Currency string
	// HttpCalls has debugging info about the requests sent to the bidder. It is only
	// filled in when debug is requested.
	HttpCalls []*openrtb_ext.ExtHttpCall
}

// Gzip is the endpoint compression value which turns on gzip request bodies.
const Gzip string = "GZIP"

const defaultCurrency = "USD"

// AdaptBidder converts an adapters.Bidder into an exchange.AdaptedBidder.
//
// The name refers to the "Adapter" architecture pattern, and should not be confused with a Prebid "Adapter"
// (which is being phased out and replaced by Bidder for OpenRTB auctions)
func AdaptBidder(bidder adapters.Bidder, client *http.Client, cfg *config.Configuration, me metrics.MetricsEngine, name openrtb_ext.BidderName, endpointCompression string) AdaptedBidder {
	return &BidderAdapter{
		Bidder:     bidder,
		BidderName: name,
		Client:     client,
		me:         me,
		config: bidderAdapterConfig{
			Debug:               cfg.Debug,
			EndpointCompression: endpointCompression,
		},
	}
}

type BidderAdapter struct {
	Bidder     adapters.Bidder
	BidderName openrtb_ext.BidderName
	Client     *http.Client
	me         metrics.MetricsEngine
	config     bidderAdapterConfig
}

type bidderAdapterConfig struct {
	Debug               config.Debug
	EndpointCompression string
}

// RequestBid runs the bidder and records the adapter level metrics for the call.
func (bidder *BidderAdapter) RequestBid(ctx context.Context, request *openrtb2.BidRequest, reqInfo *adapters.ExtraRequestInfo, debug bool) (*SeatBid, []error) {
	start := time.Now()
	seatBid, errs := bidder.requestBid(ctx, request, reqInfo, debug)

	labels := metrics.AdapterLabels{
		RType:   requestType(request),
		Adapter: bidder.BidderName,
	}
	// Timing statistics are recorded before errors are attached to the labels.
	bidder.me.RecordAdapterTime(labels, time.Since(start))

	labels.AdapterBids = bidsToMetric(seatBid)
	labels.AdapterErrors = errorsToMetric(errs)
	bidder.me.RecordAdapterRequest(labels)

	if seatBid != nil {
		for _, bid := range seatBid.Bids {
			bidder.me.RecordAdapterPrice(labels, bid.Bid.Price)
			bidder.me.RecordAdapterBidReceived(labels, bid.BidType, bid.Bid.AdM != "")
		}
	}
	return seatBid, errs
}

func (bidder *BidderAdapter) requestBid(ctx context.Context, request *openrtb2.BidRequest, reqInfo *adapters.ExtraRequestInfo, debug bool) (*SeatBid, []error) {
	reqData, errs := bidder.Bidder.MakeRequests(request, reqInfo)

	if len(reqData) == 0 {
		// If the adapter failed to generate both requests and errors, this is an error.
		if len(errs) == 0 {
			errs = append(errs, &errortypes.FailedToRequestBids{Message: "The adapter failed to generate any bid requests, but also failed to generate an error explaining why"})
		}
		return nil, errs
	}

	for i := 0; i < len(reqData); i++ {
		if reqData[i].Headers != nil {
			reqData[i].Headers = reqData[i].Headers.Clone()
		} else {
			reqData[i].Headers = http.Header{}
		}
	}

	// Make any HTTP requests in parallel.
	// If the bidder only needs to make one, save some cycles by just using the current one.
	responseChannel := make(chan *httpCallInfo, len(reqData))
	if len(reqData) == 1 {
		responseChannel <- bidder.doRequest(ctx, reqData[0])
	} else {
		for _, oneReqData := range reqData {
			go func(data *adapters.RequestData) {
				responseChannel <- bidder.doRequest(ctx, data)
			}(oneReqData) // Method arg avoids a race condition on oneReqData
		}
	}

	seatBid := &SeatBid{
		Bids:     make([]*adapters.TypedBid, 0, len(reqData)),
		Currency: defaultCurrency,
	}
	if debug {
		seatBid.HttpCalls = make([]*openrtb_ext.ExtHttpCall, 0, len(reqData))
	}

	// If the bidder made multiple requests, we still want them to enter as many bids as possible...
	// even if the timeout occurs sometime halfway through.
	for i := 0; i < len(reqData); i++ {
		httpInfo := <-responseChannel
		// If this is a test bid, capture debugging info from the requests.
		if debug {
			seatBid.HttpCalls = append(seatBid.HttpCalls, makeExt(httpInfo))
		}

		if httpInfo.err != nil {
			errs = append(errs, httpInfo.err)
			continue
		}
		if httpInfo.response.StatusCode == http.StatusNoContent {
			continue
		}

		bidResponse, moreErrs := bidder.makeBidderResponse(request, httpInfo.request, httpInfo.response)
		errs = append(errs, moreErrs...)
		if bidResponse == nil || bidResponse.Bids == nil {
			continue
		}

		// Setup default currency as `USD` if not set in the bid response
		if bidResponse.Bids.Currency == "" {
			bidResponse.Bids.Currency = defaultCurrency
		}
		seatBid.Currency = bidResponse.Bids.Currency

		for _, typedBid := range bidResponse.Bids.Bids {
			if typedBid == nil || typedBid.Bid == nil {
				continue
			}
			seatBid.Bids = append(seatBid.Bids, typedBid)
		}
	}

	return seatBid, errs
}

func (bidder *BidderAdapter) makeBidderResponse(request *openrtb2.BidRequest, reqData *adapters.RequestData, respData *adapters.ResponseData) (*adapters.CompositeBidderResponse, []error) {
	if cb, ok := unwrapBidder(bidder.Bidder).(adapters.CompositeBidder); ok {
		return cb.MakeBidderResponse(request, reqData, respData)
	}
	return adapters.MakeCompositeBidderResponse(bidder.Bidder, request, reqData, respData)
}

// unwrapBidder returns the bidder an InfoAwareBidder delegates to, where the optional
// capabilities live.
func unwrapBidder(bidder adapters.Bidder) adapters.Bidder {
	if b, ok := bidder.(*adapters.InfoAwareBidder); ok {
		return b.Unwrap()
	}
	return bidder
}

func requestType(request *openrtb2.BidRequest) metrics.RequestType {
	if request != nil && request.App != nil {
		return metrics.ReqTypeORTB2App
	}
	return metrics.ReqTypeORTB2Web
}

var authorizationHeader = http.CanonicalHeaderKey("authorization")

func filterHeader(h http.Header) http.Header {
	clone := h.Clone()
	clone.Del(authorizationHeader)
	return clone
}

// makeExt transforms information about the HTTP call into the contract class for the PBS response.
func makeExt(httpInfo *httpCallInfo) *openrtb_ext.ExtHttpCall {
	ext := &openrtb_ext.ExtHttpCall{}

	if httpInfo != nil && httpInfo.request != nil {
		ext.Uri = httpInfo.request.Uri
		ext.RequestBody = string(httpInfo.request.Body)
		ext.RequestHeaders = filterHeader(httpInfo.request.Headers)

		if httpInfo.err == nil && httpInfo.response != nil {
			ext.ResponseBody = string(httpInfo.response.Body)
			ext.Status = httpInfo.response.StatusCode
		}
	}

	return ext
}

// doRequest makes a request, handles the response, and returns the data needed by the
// Bidder interface.
func (bidder *BidderAdapter) doRequest(ctx context.Context, req *adapters.RequestData) *httpCallInfo {
	return bidder.doRequestImpl(ctx, req, logger.Warnf)
}

func (bidder *BidderAdapter) doRequestImpl(ctx context.Context, req *adapters.RequestData, logger util.LogMsg) *httpCallInfo {
	requestBody, err := getRequestBody(req, bidder.config.EndpointCompression)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	httpReq, err := http.NewRequest(req.Method, req.Uri, requestBody)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	httpReq.Header = req.Headers

	httpCallStart := time.Now()
	httpResp, err := ctxhttp.Do(ctx, bidder.Client, httpReq)
	if err != nil {
		if err == context.DeadlineExceeded {
			err = &errortypes.Timeout{Message: err.Error()}
			if tb, ok := unwrapBidder(bidder.Bidder).(adapters.TimeoutBidder); ok {
				// Toss the timeout notification call into a go routine, as we are out of time
				// and cannot delay processing. We don't do anything with the result, as there is not much
				// we can do about a timeout notification failure. We do not want to get stuck in
				// a loop of trying to report timeouts to the timeout notifications.
				go bidder.doTimeoutNotification(tb, req, logger)
			}
		}
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 400 {
		err = &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Server responded with failure status: %d. Set request.test = 1 for debugging info.", httpResp.StatusCode),
		}
	}

	bidder.me.RecordBidderServerResponseTime(time.Since(httpCallStart))
	return &httpCallInfo{
		request: req,
		response: &adapters.ResponseData{
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Headers:    httpResp.Header,
		},
		err: err,
	}
}

func (bidder *BidderAdapter) doTimeoutNotification(timeoutBidder adapters.TimeoutBidder, req *adapters.RequestData, logger util.LogMsg) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	toReq, errL := timeoutBidder.MakeTimeoutNotification(req)
	if toReq != nil && len(errL) == 0 {
		httpReq, err := http.NewRequest(toReq.Method, toReq.Uri, bytes.NewBuffer(toReq.Body))
		if err == nil {
			httpReq.Header = req.Headers
			httpResp, err := ctxhttp.Do(ctx, bidder.Client, httpReq)
			success := (err == nil && httpResp.StatusCode >= 200 && httpResp.StatusCode < 300)
			if err == nil {
				httpResp.Body.Close()
			}
			bidder.me.RecordTimeoutNotice(success)
			if bidder.config.Debug.TimeoutNotification.Log && !(bidder.config.Debug.TimeoutNotification.FailOnly && success) {
				var msg string
				if err == nil {
					msg = fmt.Sprintf("TimeoutNotification: status:(%d) body:%s", httpResp.StatusCode, string(toReq.Body))
				} else {
					msg = fmt.Sprintf("TimeoutNotification: error:(%s) body:%s", err.Error(), string(toReq.Body))
				}
				// If logging is turned on, and logging is not disallowed via FailOnly
				util.LogRandomSample(msg, logger, bidder.config.Debug.TimeoutNotification.SamplingRate)
			}
		} else {
			bidder.me.RecordTimeoutNotice(false)
			if bidder.config.Debug.TimeoutNotification.Log {
				msg := fmt.Sprintf("TimeoutNotification: Failed to make timeout request: method(%s), uri(%s), error(%s)", toReq.Method, toReq.Uri, err.Error())
				util.LogRandomSample(msg, logger, bidder.config.Debug.TimeoutNotification.SamplingRate)
			}
		}
	} else if len(errL) > 0 && bidder.config.Debug.TimeoutNotification.Log {
		reqJSON, err := jsonutil.Marshal(req)
		var msg string
		if err == nil {
			msg = fmt.Sprintf("TimeoutNotification: Failed to generate timeout request: error(%s), bidder request(%s)", errL[0].Error(), string(reqJSON))
		} else {
			msg = fmt.Sprintf("TimeoutNotification: Failed to generate timeout request: error(%s), bidder request marshal failed(%s)", errL[0].Error(), err.Error())
		}
		util.LogRandomSample(msg, logger, bidder.config.Debug.TimeoutNotification.SamplingRate)
	}
}

type httpCallInfo struct {
	request  *adapters.RequestData
	response *adapters.ResponseData
	err      error
}

func getRequestBody(req *adapters.RequestData, endpointCompression string) (*bytes.Buffer, error) {
	switch strings.ToUpper(endpointCompression) {
	case Gzip:
		// Compress to GZIP
		b := bytes.NewBuffer(make([]byte, 0, len(req.Body)))

		w := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(w)

		w.Reset(b)
		_, err := w.Write(req.Body)
		if err != nil {
			return nil, err
		}
		err = w.Close()
		if err != nil {
			return nil, err
		}

		// Set Header
		req.Headers.Set("Content-Encoding", "gzip")

		return b, nil
	default:
		return bytes.NewBuffer(req.Body), nil
	}
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(nil)
	},
}
