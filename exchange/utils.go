package exchange

import (
	"github.com/prebid/prebid-server-admaru/errortypes"
	"github.com/prebid/prebid-server-admaru/metrics"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
)

func bidsToMetric(seatBid *SeatBid) metrics.AdapterBid {
	if seatBid != nil && len(seatBid.Bids) != 0 {
		return metrics.AdapterBidPresent
	}
	return metrics.AdapterBidNone
}

// errorsToMetric maps the fatal errors of a bidder call onto the adapter error labels.
// Warnings are not counted.
func errorsToMetric(errs []error) map[metrics.AdapterError]struct{} {
	fatal := errortypes.FatalOnly(errs)
	if len(fatal) == 0 {
		return nil
	}
	ret := make(map[metrics.AdapterError]struct{}, len(fatal))
	var s struct{}
	for _, err := range fatal {
		switch errortypes.ReadCode(err) {
		case errortypes.TimeoutErrorCode:
			ret[metrics.AdapterErrorTimeout] = s
		case errortypes.BadInputErrorCode:
			ret[metrics.AdapterErrorBadInput] = s
		case errortypes.BadServerResponseErrorCode:
			ret[metrics.AdapterErrorBadServerResponse] = s
		case errortypes.FailedToRequestBidsErrorCode:
			ret[metrics.AdapterErrorFailedToRequestBids] = s
		default:
			ret[metrics.AdapterErrorUnknown] = s
		}
	}
	return ret
}

// ErrsToBidderErrors converts the fatal errors of a bidder call into response ext messages.
func ErrsToBidderErrors(errs []error) []openrtb_ext.ExtBidderMessage {
	sErr := make([]openrtb_ext.ExtBidderMessage, 0)
	for _, err := range errortypes.FatalOnly(errs) {
		newErr := openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		}
		sErr = append(sErr, newErr)
	}

	return sErr
}

// ErrsToBidderWarnings converts the warnings of a bidder call into response ext messages.
func ErrsToBidderWarnings(errs []error) []openrtb_ext.ExtBidderMessage {
	sWarn := make([]openrtb_ext.ExtBidderMessage, 0)
	for _, warn := range errortypes.WarningOnly(errs) {
		newErr := openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(warn),
			Message: warn.Error(),
		}
		sWarn = append(sWarn, newErr)
	}
	return sWarn
}
