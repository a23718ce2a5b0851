package adapters

import (
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBidderResponse(t *testing.T) {
	bidResponse := NewBidderResponse()

	assert.Equal(t, "USD", bidResponse.Currency)
	assert.NotNil(t, bidResponse.Bids)
	assert.Empty(t, bidResponse.Bids)
}

func TestNewBidderResponseWithBidsCapacity(t *testing.T) {
	bidResponse := NewBidderResponseWithBidsCapacity(5)

	assert.Equal(t, "USD", bidResponse.Currency)
	assert.Equal(t, 5, cap(bidResponse.Bids))
	assert.Empty(t, bidResponse.Bids)
}

func TestMakeCompositeBidderResponseDelegatesToMakeBids(t *testing.T) {
	bidder := &mockBidder{}

	composite, errs := MakeCompositeBidderResponse(bidder, &openrtb2.BidRequest{}, &RequestData{}, &ResponseData{StatusCode: 200})

	assert.Empty(t, errs)
	require.NotNil(t, composite)
	require.NotNil(t, composite.Bids)
	require.Len(t, composite.Bids.Bids, 1)
	assert.Equal(t, "bid-1", composite.Bids.Bids[0].Bid.ID)
	assert.Empty(t, composite.InterestGroupSignals)
}
