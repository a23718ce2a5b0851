package admaru

import (
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-server-admaru/adapters"
	"github.com/prebid/prebid-server-admaru/adapters/adapterstest"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/errortypes"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "https://p1.admaru.net/bid"

func TestJsonSamples(t *testing.T) {
	bidder, buildErr := Builder(openrtb_ext.BidderAdmaru, config.Adapter{
		Endpoint: testEndpoint}, config.Server{ExternalUrl: "http://hosturl.com", GvlID: 1, DataCenter: "2"})

	if buildErr != nil {
		t.Fatalf("Builder returned unexpected error %v", buildErr)
	}

	adapterstest.RunJSONBidderTest(t, "admarutest", bidder)
}

func TestEndpointTemplateMalformed(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "empty", endpoint: ""},
		{name: "not-a-url", endpoint: "invalid_url"},
		{name: "relative", endpoint: "p1.admaru.net/bid"},
		{name: "double-scheme", endpoint: "http://http://p1.admaru.net"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bidder, buildErr := Builder(openrtb_ext.BidderAdmaru, config.Adapter{Endpoint: test.endpoint}, config.Server{})

			assert.Error(t, buildErr)
			assert.Nil(t, bidder)
		})
	}
}

func TestBuilderImplementsCapabilities(t *testing.T) {
	bidder := newTestBidder(t)

	_, isTimeoutBidder := bidder.(adapters.TimeoutBidder)
	assert.True(t, isTimeoutBidder)
	_, isCompositeBidder := bidder.(adapters.CompositeBidder)
	assert.True(t, isCompositeBidder)
}

func TestMakeRequestsEmptyImps(t *testing.T) {
	bidder := newTestBidder(t)

	for _, imps := range [][]openrtb2.Imp{nil, {}} {
		reqs, errs := bidder.MakeRequests(&openrtb2.BidRequest{ID: "req", Imp: imps}, &adapters.ExtraRequestInfo{})

		assert.Empty(t, reqs)
		require.Len(t, errs, 1)
		assert.IsType(t, &errortypes.BadInput{}, errs[0])
		assert.Equal(t, "No valid impressions in the bid request", errs[0].Error())
	}
}

func TestMakeRequestsFiltersImpsWithoutTagID(t *testing.T) {
	bidder := newTestBidder(t)
	request := &openrtb2.BidRequest{
		ID: "req",
		Imp: []openrtb2.Imp{
			{ID: "a", TagID: "tag-a", Banner: &openrtb2.Banner{}},
			{ID: "b"},
			{ID: "c", TagID: "tag-c", Video: &openrtb2.Video{MIMEs: []string{"video/mp4"}}},
			{ID: "d", TagID: ""},
			{ID: "e", TagID: "tag-e", Native: &openrtb2.Native{Request: "{}"}},
		},
		Cur:  []string{"USD"},
		TMax: 300,
	}

	reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.IsType(t, &errortypes.BadInput{}, err)
	}
	assert.Equal(t, `No tagid in the imp "b"`, errs[0].Error())
	assert.Equal(t, `No tagid in the imp "d"`, errs[1].Error())

	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"a", "c", "e"}, reqs[0].ImpIDs)

	var sent openrtb2.BidRequest
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	require.Len(t, sent.Imp, 3)
	assert.Equal(t, "a", sent.Imp[0].ID)
	assert.Equal(t, "c", sent.Imp[1].ID)
	assert.Equal(t, "e", sent.Imp[2].ID)
	assert.Equal(t, "req", sent.ID)
	assert.Equal(t, []string{"USD"}, sent.Cur)
	assert.Equal(t, int64(300), sent.TMax)
}

func TestMakeRequestsHeadersAndMethod(t *testing.T) {
	bidder := newTestBidder(t)

	reqs, errs := bidder.MakeRequests(&openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{{ID: "a", TagID: "tag-a"}},
	}, &adapters.ExtraRequestInfo{})

	assert.Empty(t, errs)
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, testEndpoint, reqs[0].Uri)
	assert.Equal(t, "application/json;charset=utf-8", reqs[0].Headers.Get("Content-Type"))
	assert.Equal(t, "application/json", reqs[0].Headers.Get("Accept"))
}

func TestMakeRequestsAllImpsInvalidStillSendsRequest(t *testing.T) {
	bidder := newTestBidder(t)

	reqs, errs := bidder.MakeRequests(&openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{{ID: "a"}, {ID: "b"}},
	}, &adapters.ExtraRequestInfo{})

	assert.Len(t, errs, 2)
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"id":"req","imp":[]}`, string(reqs[0].Body))
	assert.Empty(t, reqs[0].ImpIDs)
}

func TestMakeRequestsDoesNotModifyInput(t *testing.T) {
	bidder := newTestBidder(t)
	imps := []openrtb2.Imp{{ID: "a"}, {ID: "b", TagID: "tag-b"}}
	request := &openrtb2.BidRequest{ID: "req", Imp: imps}

	_, _ = bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})

	assert.Equal(t, []openrtb2.Imp{{ID: "a"}, {ID: "b", TagID: "tag-b"}}, request.Imp)
	assert.Equal(t, "a", imps[0].ID)
}

func TestMakeRequestsIsIdempotent(t *testing.T) {
	bidder := newTestBidder(t)
	request := &openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{{ID: "1"}, {ID: "2", TagID: "t2", Video: &openrtb2.Video{MIMEs: []string{"video/mp4"}}}},
	}

	firstReqs, firstErrs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})
	secondReqs, secondErrs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})

	assert.Equal(t, firstReqs, secondReqs)
	assert.Equal(t, firstErrs, secondErrs)
}

func TestMakeRequestsMarshalFailure(t *testing.T) {
	bidder := newTestBidder(t)

	reqs, errs := bidder.MakeRequests(&openrtb2.BidRequest{
		ID: "req",
		Imp: []openrtb2.Imp{
			{ID: "a"},
			{ID: "b", TagID: "tag-b", BidFloor: math.NaN()},
		},
	}, &adapters.ExtraRequestInfo{})

	assert.Empty(t, reqs)
	require.Len(t, errs, 2)
	assert.Equal(t, `No tagid in the imp "a"`, errs[0].Error())
	assert.IsType(t, &errortypes.BadInput{}, errs[1])
	assert.NotEmpty(t, errs[1].Error())
}

func TestMakeBidsUndecodableBody(t *testing.T) {
	bidder := newTestBidder(t)

	for _, body := range []string{`{`, `"text"`, `[1,2]`, `{"seatbid":{}}`, `{"seatbid":[{"bid":[{"price":"high"}]}]}`} {
		resp, errs := bidder.MakeBids(&openrtb2.BidRequest{}, &adapters.RequestData{}, &adapters.ResponseData{
			StatusCode: http.StatusOK,
			Body:       []byte(body),
		})

		assert.Nil(t, resp, body)
		require.Len(t, errs, 1, body)
		assert.IsType(t, &errortypes.BadServerResponse{}, errs[0], body)
		assert.NotEmpty(t, errs[0].Error(), body)
	}
}

func TestMakeBidsNoFill(t *testing.T) {
	bidder := newTestBidder(t)

	for _, body := range []string{`null`, `{}`, `{"seatbid":null}`, `{"seatbid":[]}`, `{"id":"req","cur":"USD"}`} {
		resp, errs := bidder.MakeBids(&openrtb2.BidRequest{}, &adapters.RequestData{}, &adapters.ResponseData{
			StatusCode: http.StatusOK,
			Body:       []byte(body),
		})

		assert.Empty(t, errs, body)
		require.NotNil(t, resp, body)
		assert.Empty(t, resp.Bids, body)
	}
}

func TestMakeBidsSkipsNullEntries(t *testing.T) {
	bidder := newTestBidder(t)
	internal := &openrtb2.BidRequest{Imp: []openrtb2.Imp{{ID: "1", Audio: &openrtb2.Audio{}}}}

	resp, errs := bidder.MakeBids(internal, &adapters.RequestData{}, &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"seatbid":[null,{"bid":[null,{"id":"x","impid":"1","price":2}]},{"bid":null}],"cur":"EUR"}`),
	})

	assert.Empty(t, errs)
	require.NotNil(t, resp)
	assert.Equal(t, "EUR", resp.Currency)
	require.Len(t, resp.Bids, 1)
	assert.Equal(t, "x", resp.Bids[0].Bid.ID)
	assert.Equal(t, openrtb_ext.BidTypeAudio, resp.Bids[0].BidType)
}

func TestMakeBidsKeepsResponseOrder(t *testing.T) {
	bidder := newTestBidder(t)
	internal := &openrtb2.BidRequest{Imp: []openrtb2.Imp{{ID: "1"}, {ID: "2"}}}

	resp, errs := bidder.MakeBids(internal, &adapters.RequestData{}, &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"seatbid":[{"bid":[{"id":"b","impid":"2","price":1},{"id":"a","impid":"1","price":1}]},{"bid":[{"id":"c","impid":"1","price":1}]}]}`),
	})

	assert.Empty(t, errs)
	require.Len(t, resp.Bids, 3)
	assert.Equal(t, "b", resp.Bids[0].Bid.ID)
	assert.Equal(t, "a", resp.Bids[1].Bid.ID)
	assert.Equal(t, "c", resp.Bids[2].Bid.ID)
}

func TestGetMediaTypeForBid(t *testing.T) {
	tests := []struct {
		name     string
		imps     []openrtb2.Imp
		impID    string
		expected openrtb_ext.BidType
	}{
		{
			name:     "banner",
			imps:     []openrtb2.Imp{{ID: "1", Banner: &openrtb2.Banner{}}},
			impID:    "1",
			expected: openrtb_ext.BidTypeBanner,
		},
		{
			name:     "video-only",
			imps:     []openrtb2.Imp{{ID: "1", Video: &openrtb2.Video{}}},
			impID:    "1",
			expected: openrtb_ext.BidTypeVideo,
		},
		{
			name:     "native-only",
			imps:     []openrtb2.Imp{{ID: "1", Native: &openrtb2.Native{}}},
			impID:    "1",
			expected: openrtb_ext.BidTypeNative,
		},
		{
			name:     "audio-only",
			imps:     []openrtb2.Imp{{ID: "1", Audio: &openrtb2.Audio{}}},
			impID:    "1",
			expected: openrtb_ext.BidTypeAudio,
		},
		{
			name:     "banner-wins-over-video",
			imps:     []openrtb2.Imp{{ID: "1", Banner: &openrtb2.Banner{}, Video: &openrtb2.Video{}}},
			impID:    "1",
			expected: openrtb_ext.BidTypeBanner,
		},
		{
			name:     "video-wins-over-native-and-audio",
			imps:     []openrtb2.Imp{{ID: "1", Video: &openrtb2.Video{}, Native: &openrtb2.Native{}, Audio: &openrtb2.Audio{}}},
			impID:    "1",
			expected: openrtb_ext.BidTypeVideo,
		},
		{
			name:     "native-wins-over-audio",
			imps:     []openrtb2.Imp{{ID: "1", Native: &openrtb2.Native{}, Audio: &openrtb2.Audio{}}},
			impID:    "1",
			expected: openrtb_ext.BidTypeNative,
		},
		{
			name:     "no-shape",
			imps:     []openrtb2.Imp{{ID: "1"}},
			impID:    "1",
			expected: openrtb_ext.BidTypeBanner,
		},
		{
			name:     "no-match",
			imps:     []openrtb2.Imp{{ID: "1", Video: &openrtb2.Video{}}},
			impID:    "2",
			expected: openrtb_ext.BidTypeBanner,
		},
		{
			name:     "no-imps",
			imps:     nil,
			impID:    "1",
			expected: openrtb_ext.BidTypeBanner,
		},
		{
			name:     "first-match-decides",
			imps:     []openrtb2.Imp{{ID: "1"}, {ID: "1", Video: &openrtb2.Video{}}},
			impID:    "1",
			expected: openrtb_ext.BidTypeBanner,
		},
		{
			name:     "later-imp-matches",
			imps:     []openrtb2.Imp{{ID: "1", Banner: &openrtb2.Banner{}}, {ID: "2", Native: &openrtb2.Native{}}},
			impID:    "2",
			expected: openrtb_ext.BidTypeNative,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, getMediaTypeForBid(&openrtb2.Bid{ImpID: test.impID}, test.imps))
		})
	}
}

func TestOutboundImps(t *testing.T) {
	internal := &openrtb2.BidRequest{Imp: []openrtb2.Imp{{ID: "internal"}}}

	t.Run("from-payload", func(t *testing.T) {
		imps := outboundImps(internal, &adapters.RequestData{Body: []byte(`{"id":"r","imp":[{"id":"sent","video":{"mimes":null}}]}`)})
		require.Len(t, imps, 1)
		assert.Equal(t, "sent", imps[0].ID)
		assert.NotNil(t, imps[0].Video)
	})

	t.Run("unreadable-payload", func(t *testing.T) {
		imps := outboundImps(internal, &adapters.RequestData{Body: []byte(`not json`)})
		require.Len(t, imps, 1)
		assert.Equal(t, "internal", imps[0].ID)
	})

	t.Run("no-payload", func(t *testing.T) {
		imps := outboundImps(internal, nil)
		require.Len(t, imps, 1)
		assert.Equal(t, "internal", imps[0].ID)
	})

	t.Run("nothing", func(t *testing.T) {
		assert.Nil(t, outboundImps(nil, &adapters.RequestData{}))
	})
}

func TestEndToEnd(t *testing.T) {
	bidder := newTestBidder(t)
	request := &openrtb2.BidRequest{
		ID: "req",
		Imp: []openrtb2.Imp{
			{ID: "1", TagID: "", Banner: &openrtb2.Banner{}},
			{ID: "2", TagID: "t2", Video: &openrtb2.Video{MIMEs: []string{"video/mp4"}}},
		},
	}

	reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})

	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadInput{}, errs[0])
	assert.Contains(t, errs[0].Error(), "No tagid")
	assert.Contains(t, errs[0].Error(), `"1"`)
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"2"}, reqs[0].ImpIDs)

	resp, errs := bidder.MakeBids(request, reqs[0], &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"seatbid":[{"bid":[{"impid":"2","price":1.5}]}],"cur":"USD"}`),
	})

	assert.Empty(t, errs)
	require.NotNil(t, resp)
	assert.Equal(t, "USD", resp.Currency)
	require.Len(t, resp.Bids, 1)
	assert.Equal(t, "2", resp.Bids[0].Bid.ImpID)
	assert.Equal(t, 1.5, resp.Bids[0].Bid.Price)
	assert.Equal(t, openrtb_ext.BidTypeVideo, resp.Bids[0].BidType)
}

func TestMakeTimeoutNotification(t *testing.T) {
	bidder := newTestBidder(t).(adapters.TimeoutBidder)

	req, errs := bidder.MakeTimeoutNotification(&adapters.RequestData{Method: http.MethodPost, Uri: testEndpoint})

	assert.Nil(t, req)
	assert.Empty(t, errs)
}

func TestMakeBidderResponseMatchesMakeBids(t *testing.T) {
	bidder := newTestBidder(t)
	composite := bidder.(adapters.CompositeBidder)
	internal := &openrtb2.BidRequest{Imp: []openrtb2.Imp{{ID: "1", Native: &openrtb2.Native{}}}}
	response := &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"seatbid":[{"bid":[{"id":"x","impid":"1","price":1}]}],"cur":"USD"}`),
	}

	expected, expectedErrs := bidder.MakeBids(internal, &adapters.RequestData{}, response)
	actual, actualErrs := composite.MakeBidderResponse(internal, &adapters.RequestData{}, response)

	require.NotNil(t, actual)
	assert.Equal(t, expected, actual.Bids)
	assert.Equal(t, expectedErrs, actualErrs)
	assert.Empty(t, actual.InterestGroupSignals)

	actual, actualErrs = composite.MakeBidderResponse(internal, &adapters.RequestData{}, &adapters.ResponseData{Body: []byte(`{`)})
	require.NotNil(t, actual)
	assert.Nil(t, actual.Bids)
	require.Len(t, actualErrs, 1)
	assert.IsType(t, &errortypes.BadServerResponse{}, actualErrs[0])
}

func TestConcurrentUse(t *testing.T) {
	bidder := newTestBidder(t)
	request := &openrtb2.BidRequest{
		ID:  "req",
		Imp: []openrtb2.Imp{{ID: "1"}, {ID: "2", TagID: "t2", Audio: &openrtb2.Audio{MIMEs: []string{"audio/mp4"}}}},
	}
	response := &adapters.ResponseData{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"seatbid":[{"bid":[{"id":"x","impid":"2","price":1}]}],"cur":"USD"}`),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})
			assert.Len(t, errs, 1)
			if !assert.Len(t, reqs, 1) {
				return
			}
			resp, errs := bidder.MakeBids(request, reqs[0], response)
			assert.Empty(t, errs)
			if assert.NotNil(t, resp) && assert.Len(t, resp.Bids, 1) {
				assert.Equal(t, openrtb_ext.BidTypeAudio, resp.Bids[0].BidType)
			}
		}()
	}
	wg.Wait()
}

func newTestBidder(t *testing.T) adapters.Bidder {
	t.Helper()

	bidder, err := Builder(openrtb_ext.BidderAdmaru, config.Adapter{Endpoint: testEndpoint}, config.Server{})
	require.NoError(t, err)
	return bidder
}
