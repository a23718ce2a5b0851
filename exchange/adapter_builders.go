package exchange

import (
	"github.com/prebid/prebid-server-admaru/adapters"
	"github.com/prebid/prebid-server-admaru/adapters/admaru"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
)

// Adapter registration is kept in this separate file for ease of use and to aid
// in resolving merge conflicts.

func newAdapterBuilders() map[openrtb_ext.BidderName]adapters.Builder {
	return map[openrtb_ext.BidderName]adapters.Builder{
		openrtb_ext.BidderAdmaru: admaru.Builder,
	}
}
