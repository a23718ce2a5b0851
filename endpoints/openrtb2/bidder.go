package openrtb2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-server-admaru/adapters"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/errortypes"
	"github.com/prebid/prebid-server-admaru/exchange"
	"github.com/prebid/prebid-server-admaru/logger"
	"github.com/prebid/prebid-server-admaru/metrics"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"github.com/prebid/prebid-server-admaru/util/jsonutil"
)

// NewBidderEndpoint implements POST /openrtb2/bidders/:bidder. The body is an OpenRTB bid request
// which is run through the named bidder; the answer is an OpenRTB bid response holding one seat.
func NewBidderEndpoint(bidders map[openrtb_ext.BidderName]exchange.AdaptedBidder, cfg *config.Configuration, me metrics.MetricsEngine) httprouter.Handle {
	return httprouter.Handle((&endpointDeps{
		bidders: bidders,
		cfg:     cfg,
		me:      me,
	}).BidderHandle)
}

type endpointDeps struct {
	bidders map[openrtb_ext.BidderName]exchange.AdaptedBidder
	cfg     *config.Configuration
	me      metrics.MetricsEngine
}

func (deps *endpointDeps) BidderHandle(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	start := time.Now()
	labels := metrics.Labels{
		RType:         metrics.ReqTypeORTB2Web,
		RequestStatus: metrics.RequestStatusOK,
	}
	defer func() {
		deps.me.RecordRequest(labels)
		deps.me.RecordRequestTime(labels, time.Since(start))
	}()

	bidderParam := ps.ByName("bidder")
	bidderName, bidder, ok := deps.lookupBidder(bidderParam)
	if !ok {
		labels.RequestStatus = metrics.RequestStatusBadInput
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Unknown or disabled bidder: %s\n", bidderParam)
		return
	}

	req, errL := deps.parseRequest(r)
	if len(errL) > 0 {
		labels.RequestStatus = metrics.RequestStatusBadInput
		writeError(w, errL)
		return
	}
	if req.App != nil {
		labels.RType = metrics.ReqTypeORTB2App
	}
	deps.me.RecordImps(impLabels(req))

	timeout := deps.cfg.LimitTimeout(time.Duration(req.TMax) * time.Millisecond)
	ctx := r.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	debug := req.Test == 1
	logger.Debugf("/openrtb2/bidders/%s: request %s with %d imps, timeout %v", bidderName, req.ID, len(req.Imp), timeout)
	bidderStart := time.Now()
	seatBid, bidderErrs := bidder.RequestBid(ctx, req, &adapters.ExtraRequestInfo{BidderCoreName: bidderName}, debug)
	elapsed := time.Since(bidderStart)

	if (seatBid == nil || len(seatBid.Bids) == 0) && len(bidderErrs) == 0 && !debug {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if errortypes.ContainsFatalError(bidderErrs) && (seatBid == nil || len(seatBid.Bids) == 0) {
		labels.RequestStatus = metrics.RequestStatusErr
	}

	response, err := buildBidResponse(req, bidderName, seatBid, bidderErrs, debug, elapsed, timeout)
	if err != nil {
		labels.RequestStatus = metrics.RequestStatusErr
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Critical error while building the response: %s\n", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(response); err != nil {
		logger.Errorf("/openrtb2/bidders/%s: error writing response: %v", bidderName, err)
	}
}

func (deps *endpointDeps) lookupBidder(name string) (openrtb_ext.BidderName, exchange.AdaptedBidder, bool) {
	bidderName, ok := openrtb_ext.NormalizeBidderName(name)
	if !ok {
		return "", nil, false
	}
	bidder, ok := deps.bidders[bidderName]
	return bidderName, bidder, ok
}

// parseRequest reads and decodes the OpenRTB request, rejecting bodies which are too large,
// undecodable, or missing the request id.
func (deps *endpointDeps) parseRequest(r *http.Request) (*openrtb2.BidRequest, []error) {
	var body io.Reader = r.Body
	var lr *io.LimitedReader
	if deps.cfg.MaxRequestSize > 0 {
		// Read one byte past the limit to tell an exact fit from an overflow.
		lr = &io.LimitedReader{R: r.Body, N: deps.cfg.MaxRequestSize + 1}
		body = lr
	}

	requestJson, err := io.ReadAll(body)
	if err != nil {
		return nil, []error{err}
	}
	if lr != nil && lr.N <= 0 {
		return nil, []error{fmt.Errorf("request size exceeded max size of %d bytes.", deps.cfg.MaxRequestSize)}
	}
	if len(requestJson) == 0 {
		return nil, []error{errors.New("request body is empty")}
	}

	req := &openrtb2.BidRequest{}
	if err := jsonutil.UnmarshalValid(requestJson, req); err != nil {
		return nil, []error{err}
	}
	if req.ID == "" {
		return nil, []error{errors.New("request missing required field: \"id\"")}
	}
	return req, nil
}

func writeError(w http.ResponseWriter, errL []error) {
	w.WriteHeader(http.StatusBadRequest)
	for _, err := range errL {
		fmt.Fprintf(w, "Invalid request format: %s\n", err.Error())
	}
}

func impLabels(req *openrtb2.BidRequest) metrics.ImpLabels {
	var labels metrics.ImpLabels
	for _, imp := range req.Imp {
		if imp.Banner != nil {
			labels.BannerImps = true
		}
		if imp.Video != nil {
			labels.VideoImps = true
		}
		if imp.Audio != nil {
			labels.AudioImps = true
		}
		if imp.Native != nil {
			labels.NativeImps = true
		}
	}
	return labels
}

// buildBidResponse crafts the OpenRTB response for one bidder's seat. Each bid carries its
// media type under ext.prebid and the ext the exchange returned under ext.bidder.
func buildBidResponse(req *openrtb2.BidRequest, bidderName openrtb_ext.BidderName, seatBid *exchange.SeatBid, errs []error, debug bool, elapsed, timeout time.Duration) ([]byte, error) {
	response := &openrtb2.BidResponse{ID: req.ID}

	if seatBid != nil && len(seatBid.Bids) > 0 {
		response.Cur = seatBid.Currency
		seat := openrtb2.SeatBid{
			Seat: string(bidderName),
			Bid:  make([]openrtb2.Bid, 0, len(seatBid.Bids)),
		}
		for _, typedBid := range seatBid.Bids {
			bid := *typedBid.Bid
			bidExt, err := jsonutil.Marshal(openrtb_ext.ExtBid{
				Prebid: &openrtb_ext.ExtBidPrebid{Type: typedBid.BidType},
				Bidder: typedBid.Bid.Ext,
			})
			if err != nil {
				return nil, err
			}
			bid.Ext = bidExt
			seat.Bid = append(seat.Bid, bid)
		}
		response.SeatBid = []openrtb2.SeatBid{seat}
	}

	ext := openrtb_ext.ExtBidResponse{
		ResponseTimeMillis:   map[openrtb_ext.BidderName]int{bidderName: int(elapsed / time.Millisecond)},
		RequestTimeoutMillis: timeout.Milliseconds(),
	}
	if bidderErrors := exchange.ErrsToBidderErrors(errs); len(bidderErrors) > 0 {
		ext.Errors = map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage{bidderName: bidderErrors}
	}
	if bidderWarnings := exchange.ErrsToBidderWarnings(errs); len(bidderWarnings) > 0 {
		ext.Warnings = map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage{bidderName: bidderWarnings}
	}
	if debug && seatBid != nil && len(seatBid.HttpCalls) > 0 {
		ext.Debug = &openrtb_ext.ExtResponseDebug{
			HttpCalls: map[openrtb_ext.BidderName][]*openrtb_ext.ExtHttpCall{bidderName: seatBid.HttpCalls},
		}
	}

	extJson, err := jsonutil.Marshal(ext)
	if err != nil {
		return nil, err
	}
	response.Ext = extJson

	return jsonutil.Marshal(response)
}
