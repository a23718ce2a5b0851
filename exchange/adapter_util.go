package exchange

import (
	"fmt"
	"net/http"

	"github.com/prebid/prebid-server-admaru/adapters"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/metrics"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
)

// BuildAdapters builds, wraps and adapts every enabled bidder found in the adapters configuration.
func BuildAdapters(client *http.Client, cfg *config.Configuration, infos config.BidderInfos, me metrics.MetricsEngine) (map[openrtb_ext.BidderName]AdaptedBidder, []error) {
	server := config.Server{ExternalUrl: cfg.ExternalURL}
	bidders, errs := buildBidders(cfg.Adapters, infos, newAdapterBuilders(), server)

	if len(errs) > 0 {
		return nil, errs
	}

	exchangeBidders := make(map[openrtb_ext.BidderName]AdaptedBidder, len(bidders))
	for bidderName, bidder := range bidders {
		adapterCfg := cfg.Adapters[string(bidderName)]
		exchangeBidders[bidderName] = AdaptBidder(bidder, client, cfg, me, bidderName, adapterCfg.EndpointCompression)
	}
	return exchangeBidders, nil
}

func buildBidders(adapterConfigs map[string]config.Adapter, infos config.BidderInfos, builders map[openrtb_ext.BidderName]adapters.Builder, server config.Server) (map[openrtb_ext.BidderName]adapters.Bidder, []error) {
	bidders := make(map[openrtb_ext.BidderName]adapters.Bidder)
	var errs []error

	for bidder, adapterCfg := range adapterConfigs {
		bidderName, bidderNameFound := openrtb_ext.NormalizeBidderName(bidder)
		if !bidderNameFound {
			errs = append(errs, fmt.Errorf("%v: unknown bidder", bidder))
			continue
		}
		if adapterCfg.Disabled {
			continue
		}

		builder, builderFound := builders[bidderName]
		if !builderFound {
			errs = append(errs, fmt.Errorf("%v: builder not registered", bidder))
			continue
		}
		info, infoFound := infos[string(bidderName)]
		if !infoFound {
			errs = append(errs, fmt.Errorf("%v: bidder info not found", bidder))
			continue
		}

		bidderInstance, builderErr := builder(bidderName, adapterCfg, server)
		if builderErr != nil {
			errs = append(errs, fmt.Errorf("%v: %v", bidder, builderErr))
			continue
		}
		bidders[bidderName] = adapters.BuildInfoAwareBidder(bidderInstance, info)
	}
	return bidders, errs
}

// GetActiveBidders returns the names of all bidders which are configured and not disabled.
func GetActiveBidders(adapterConfigs map[string]config.Adapter) map[string]openrtb_ext.BidderName {
	activeBidders := make(map[string]openrtb_ext.BidderName)

	for name, adapterCfg := range adapterConfigs {
		if bidderName, ok := openrtb_ext.NormalizeBidderName(name); ok && !adapterCfg.Disabled {
			activeBidders[string(bidderName)] = bidderName
		}
	}

	return activeBidders
}
