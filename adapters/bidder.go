package adapters

import (
	"encoding/json"
	"net/http"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
)

// Bidder describes how to connect to external demand.
type Bidder interface {
	// MakeRequests makes the HTTP requests which should be made to fetch bids.
	//
	// Bidder implementations can assume that the incoming BidRequest has:
	//
	//   1. Only {Imp.Type, Platform} combinations which are valid, as defined by the static/bidder-info.{bidder}.yaml file.
	//   2. Imp.Ext of the form {"bidder": params}, where "params" has been validated against the static/bidder-params/{bidder}.json JSON Schema.
	//
	// nil return values are acceptable, but nil elements *inside* those slices are not.
	//
	// The errors should contain a list of errors which explain why this bidder's bids will be
	// "subpar" in some way. For example: the request contained ad types which this bidder doesn't support.
	//
	// If the error is caused by bad user input, return an errortypes.BadInput.
	MakeRequests(request *openrtb2.BidRequest, reqInfo *ExtraRequestInfo) ([]*RequestData, []error)

	// MakeBids unpacks the server's response into Bids.
	//
	// The internal request is the request passed to MakeRequests. The external request is
	// the RequestData this response answers.
	//
	// The bids can be nil (for no bids), but should not contain nil elements.
	//
	// The errors should contain a list of errors which explain why this bidder's bids will be
	// "subpar" in some way. For example: the server response didn't have the expected format.
	//
	// If the error was caused by bad user input, return a errortypes.BadInput.
	// If the error was caused by a bad server response, return a errortypes.BadServerResponse
	MakeBids(internalRequest *openrtb2.BidRequest, externalRequest *RequestData, response *ResponseData) (*BidderResponse, []error)
}

// TimeoutBidder is used to identify bidders that support timeout notifications.
type TimeoutBidder interface {
	Bidder

	// MakeTimeoutNotification functions much the same as MakeRequests, except it is fed the bidder request that timed out,
	// and expects that only one notification "request" will be generated. A use case for multiple timeout notifications
	// has not been anticipated.
	//
	// Do note that if MakeRequests returns multiple requests, and more than one of these times out, MakeTimeoutNotification will be called
	// once for each timed out request. A nil return value means there is nothing to send.
	MakeTimeoutNotification(req *RequestData) (*RequestData, []error)
}

// CompositeBidder is used to identify bidders that build their whole response themselves,
// bids plus any response level extras, instead of relying on MakeCompositeBidderResponse.
type CompositeBidder interface {
	Bidder

	MakeBidderResponse(internalRequest *openrtb2.BidRequest, externalRequest *RequestData, response *ResponseData) (*CompositeBidderResponse, []error)
}

// CompositeBidderResponse packages the bids of one HTTP call together with the
// response level data some exchanges return beside them.
type CompositeBidderResponse struct {
	Bids *BidderResponse
	// InterestGroupSignals carries raw interest group auction intents, if the exchange sent any.
	InterestGroupSignals []json.RawMessage
}

// MakeCompositeBidderResponse is the composite response used for bidders which don't implement
// CompositeBidder: the bids from MakeBids and nothing else.
func MakeCompositeBidderResponse(bidder Bidder, internalRequest *openrtb2.BidRequest, externalRequest *RequestData, response *ResponseData) (*CompositeBidderResponse, []error) {
	bids, errs := bidder.MakeBids(internalRequest, externalRequest, response)
	return &CompositeBidderResponse{Bids: bids}, errs
}

// BidderResponse wraps the server's response with the list of bids and the currency used by the bidder.
//
// Currency declares the currency in which all bid prices are expressed. An empty value
// means USD, the OpenRTB default.
type BidderResponse struct {
	Currency string
	Bids     []*TypedBid
}

// NewBidderResponseWithBidsCapacity create a new BidderResponse initialising the bids array capacity and the default currency value
// to "USD".
//
// bidsCapacity allows to set initial Bids array capacity.
func NewBidderResponseWithBidsCapacity(bidsCapacity int) *BidderResponse {
	return &BidderResponse{
		Currency: "USD",
		Bids:     make([]*TypedBid, 0, bidsCapacity),
	}
}

// NewBidderResponse create a new BidderResponse initialising the bids array and the default currency value
// to "USD".
func NewBidderResponse() *BidderResponse {
	return NewBidderResponseWithBidsCapacity(0)
}

// TypedBid packages the openrtb2.Bid with any bidder-specific information that PBS needs to populate an
// openrtb_ext.ExtBidPrebid.
//
// TypedBid.Bid.Ext will become "response.seatbid[i].bid.ext.bidder" in the final response,
// and the TypedBid.BidType will become "response.seatbid[i].bid.ext.prebid.type".
type TypedBid struct {
	Bid     *openrtb2.Bid
	BidType openrtb_ext.BidType
}

// RequestData and ResponseData exist so that the core code can implement its "debug" API uniformly across all adapters.
// It will also let us test valyala/vasthttp vs. net/http without changing all the adapters

// ResponseData packages together information from the server's http.Response.
type ResponseData struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// RequestData packages together the fields needed to make an http.Request.
type RequestData struct {
	Method  string
	Uri     string
	Body    []byte
	Headers http.Header
	ImpIDs  []string
}

// ExtraRequestInfo carries data about the incoming request which is not part of the OpenRTB payload.
type ExtraRequestInfo struct {
	// BidderCoreName is the core bidder the request is addressed to.
	BidderCoreName openrtb_ext.BidderName
}

// Builder is a function type which builds an instance of a Bidder for the given config.
type Builder func(openrtb_ext.BidderName, config.Adapter, config.Server) (Bidder, error)
