package admaru

import (
	"fmt"
	"net/http"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-server-admaru/adapters"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/errortypes"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"github.com/prebid/prebid-server-admaru/util/iterutil"
	"github.com/prebid/prebid-server-admaru/util/jsonutil"
)

type adapter struct {
	endpoint string
}

// bidResponse mirrors openrtb2.BidResponse with pointer elements so that null
// seat bids and bids sent by the exchange can be told apart and skipped.
type bidResponse struct {
	SeatBid []*seatBid `json:"seatbid,omitempty"`
	Cur     string     `json:"cur,omitempty"`
}

type seatBid struct {
	Bid []*openrtb2.Bid `json:"bid"`
}

// Builder builds a new instance of the Admaru adapter for the given bidder with the given config.
func Builder(bidderName openrtb_ext.BidderName, cfg config.Adapter, server config.Server) (adapters.Bidder, error) {
	if err := config.ValidateEndpoint(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("unable to build %s adapter: %w", bidderName, err)
	}

	bidder := &adapter{
		endpoint: cfg.Endpoint,
	}
	return bidder, nil
}

func (a *adapter) MakeRequests(request *openrtb2.BidRequest, reqInfo *adapters.ExtraRequestInfo) ([]*adapters.RequestData, []error) {
	if len(request.Imp) == 0 {
		return nil, []error{&errortypes.BadInput{
			Message: "No valid impressions in the bid request",
		}}
	}

	var errs []error
	validImps := make([]openrtb2.Imp, 0, len(request.Imp))
	for _, imp := range request.Imp {
		if imp.TagID == "" {
			errs = append(errs, &errortypes.BadInput{
				Message: fmt.Sprintf("No tagid in the imp %q", imp.ID),
			})
			continue
		}
		validImps = append(validImps, imp)
	}

	reqCopy := *request
	reqCopy.Imp = validImps

	reqJSON, err := jsonutil.Marshal(&reqCopy)
	if err != nil {
		return nil, append(errs, &errortypes.BadInput{
			Message: err.Error(),
		})
	}

	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")

	return []*adapters.RequestData{{
		Method:  http.MethodPost,
		Uri:     a.endpoint,
		Body:    reqJSON,
		Headers: headers,
		ImpIDs:  openrtb_ext.GetImpIDs(reqCopy.Imp),
	}}, errs
}

// MakeBids decodes the response whatever its status code. Bid types are resolved
// against the imps which were actually sent to the exchange.
func (a *adapter) MakeBids(internalRequest *openrtb2.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	var bidResp *bidResponse
	if err := jsonutil.Unmarshal(response.Body, &bidResp); err != nil {
		return nil, []error{&errortypes.BadServerResponse{
			Message: err.Error(),
		}}
	}

	if bidResp == nil || len(bidResp.SeatBid) == 0 {
		return adapters.NewBidderResponseWithBidsCapacity(0), nil
	}

	imps := outboundImps(internalRequest, externalRequest)

	bidResponse := adapters.NewBidderResponseWithBidsCapacity(len(bidResp.SeatBid))
	bidResponse.Currency = bidResp.Cur
	for seat := range iterutil.NonNilValues(bidResp.SeatBid) {
		for bid := range iterutil.NonNilValues(seat.Bid) {
			bidResponse.Bids = append(bidResponse.Bids, &adapters.TypedBid{
				Bid:     bid,
				BidType: getMediaTypeForBid(bid, imps),
			})
		}
	}
	return bidResponse, nil
}

// MakeTimeoutNotification is a no-op, Admaru has no timeout callback.
func (a *adapter) MakeTimeoutNotification(req *adapters.RequestData) (*adapters.RequestData, []error) {
	return nil, nil
}

// MakeBidderResponse returns the bids from MakeBids with nothing added.
func (a *adapter) MakeBidderResponse(internalRequest *openrtb2.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.CompositeBidderResponse, []error) {
	bids, errs := a.MakeBids(internalRequest, externalRequest, response)
	return &adapters.CompositeBidderResponse{Bids: bids}, errs
}

// outboundImps returns the imps of the payload sent to the exchange, falling back to
// the internal request when that payload can't be read.
func outboundImps(internalRequest *openrtb2.BidRequest, externalRequest *adapters.RequestData) []openrtb2.Imp {
	if externalRequest != nil && len(externalRequest.Body) > 0 {
		var payload openrtb2.BidRequest
		if err := jsonutil.Unmarshal(externalRequest.Body, &payload); err == nil {
			return payload.Imp
		}
	}
	if internalRequest == nil {
		return nil
	}
	return internalRequest.Imp
}

func getMediaTypeForBid(bid *openrtb2.Bid, imps []openrtb2.Imp) openrtb_ext.BidType {
	for i := range imps {
		if imps[i].ID != bid.ImpID {
			continue
		}
		switch {
		case imps[i].Banner != nil:
			return openrtb_ext.BidTypeBanner
		case imps[i].Video != nil:
			return openrtb_ext.BidTypeVideo
		case imps[i].Native != nil:
			return openrtb_ext.BidTypeNative
		case imps[i].Audio != nil:
			return openrtb_ext.BidTypeAudio
		}
		return openrtb_ext.BidTypeBanner
	}
	return openrtb_ext.BidTypeBanner
}
