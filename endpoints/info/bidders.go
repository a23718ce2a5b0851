package info

import (
	"net/http"
	"sort"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"github.com/prebid/prebid-server-admaru/util/jsonutil"
)

// NewBiddersEndpoint implements /info/bidders. It lists the bidders enabled on this instance.
func NewBiddersEndpoint(activeBidders map[string]openrtb_ext.BidderName) httprouter.Handle {
	bidderNames := make([]string, 0, len(activeBidders))
	for bidderName := range activeBidders {
		bidderNames = append(bidderNames, bidderName)
	}
	sort.Strings(bidderNames)

	biddersJson, err := jsonutil.Marshal(bidderNames)
	if err != nil {
		glog.Fatalf("error creating /info/bidders endpoint response: %v", err)
	}

	return httprouter.Handle(func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(biddersJson); err != nil {
			glog.Errorf("error writing response to /info/bidders: %v", err)
		}
	})
}

// NewBidderDetailsEndpoint implements /info/bidders/:bidderName
func NewBidderDetailsEndpoint(infos config.BidderInfos) httprouter.Handle {
	// Build all the responses up front, since there are a finite number and it won't use much memory.
	responses := make(map[string][]byte, len(infos))
	for bidderName, info := range infos {
		jsonBytes, err := jsonutil.Marshal(info)
		if err != nil {
			glog.Fatalf("error writing JSON of bidder info %s: %v", bidderName, err)
		}
		responses[bidderName] = jsonBytes
	}

	// Return an endpoint which writes the responses from memory.
	return httprouter.Handle(func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		forBidder := ps.ByName("bidderName")
		bidderName, ok := openrtb_ext.NormalizeBidderName(forBidder)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if response, ok := responses[string(bidderName)]; ok {
			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write(response); err != nil {
				glog.Errorf("error writing response to /info/bidders/%s: %v", forBidder, err)
			}
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	})
}
