package openrtb_ext

import (
	"strings"
)

// BidderName refers to a core bidder id or an alias id.
type BidderName string

const (
	BidderAdmaru BidderName = "admaru"
)

// CoreBidderNames returns a slice of all core bidders.
func CoreBidderNames() []BidderName {
	return []BidderName{
		BidderAdmaru,
	}
}

func (name BidderName) String() string {
	return string(name)
}

// NormalizeBidderName returns the core bidder name matching the input, ignoring case.
func NormalizeBidderName(name string) (BidderName, bool) {
	for _, bidder := range CoreBidderNames() {
		if strings.EqualFold(string(bidder), name) {
			return bidder, true
		}
	}
	return "", false
}
