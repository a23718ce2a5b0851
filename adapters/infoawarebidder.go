package adapters

import (
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-server-admaru/config"
	"github.com/prebid/prebid-server-admaru/errortypes"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
)

// InfoAwareBidder wraps a Bidder to ensure all requests abide by the capabilities and
// media types defined in the static/bidder-info/{bidder}.yaml file.
//
// It adjusts incoming requests in the following ways:
//  1. If App or Site traffic is not supported by the info file, then requests from
//     those sources will be rejected before the delegate is called.
//  2. If a given MediaType is not supported for the platform, then it will be set
//     to nil before the request is forwarded to the delegate.
//  3. Any Imps which lost all of their MediaTypes in step 2 will be removed.
//  4. If there are no valid Imps left, the delegate won't be called at all.
//
// The caller's request is never modified; a copy is forwarded when imps change.
type InfoAwareBidder struct {
	Bidder
	info parsedBidderInfo
}

// BuildInfoAwareBidder wraps a bidder to enforce inventory {site, app} and media type support.
func BuildInfoAwareBidder(bidder Bidder, info config.BidderInfo) Bidder {
	return &InfoAwareBidder{
		Bidder: bidder,
		info:   parseBidderInfo(info),
	}
}

// Unwrap returns the wrapped bidder, which is where the optional capabilities
// (TimeoutBidder, CompositeBidder) are implemented.
func (i *InfoAwareBidder) Unwrap() Bidder {
	return i.Bidder
}

func (i *InfoAwareBidder) MakeRequests(request *openrtb2.BidRequest, reqInfo *ExtraRequestInfo) ([]*RequestData, []error) {
	var allowedMediaTypes parsedSupports

	if request.Site != nil {
		if !i.info.site.enabled {
			return nil, []error{&errortypes.Warning{Message: "this bidder does not support site requests", WarningCode: errortypes.UnsupportedPlatformWarningCode}}
		}
		allowedMediaTypes = i.info.site
	}
	if request.App != nil {
		if !i.info.app.enabled {
			return nil, []error{&errortypes.Warning{Message: "this bidder does not support app requests", WarningCode: errortypes.UnsupportedPlatformWarningCode}}
		}
		allowedMediaTypes = i.info.app
	}
	if request.Site == nil && request.App == nil {
		// neither platform is declared; let the delegate decide
		return i.Bidder.MakeRequests(request, reqInfo)
	}

	updated, updatedImps, errs := pruneImps(request.Imp, allowedMediaTypes)
	if updated {
		requestCopy := *request
		requestCopy.Imp = updatedImps
		request = &requestCopy
	}

	// If all imps in bid request are invalid, exit
	if len(request.Imp) == 0 && updated {
		return nil, append(errs, &errortypes.Warning{Message: "Bid request didn't contain media types supported by the bidder", WarningCode: errortypes.UnsupportedMediaTypeWarningCode})
	}

	reqs, delegateErrs := i.Bidder.MakeRequests(request, reqInfo)
	return reqs, append(errs, delegateErrs...)
}

// pruneImps trims media types that the platform doesn't allow and removes imps which have none left.
// The input slice is left untouched; a new slice is returned when anything changed.
func pruneImps(imps []openrtb2.Imp, allowedTypes parsedSupports) (bool, []openrtb2.Imp, []error) {
	var updated bool
	var errs []error
	pruned := make([]openrtb2.Imp, 0, len(imps))

	for i := range imps {
		imp := imps[i]
		hadTypes := hasAnyTypes(&imp)

		if !allowedTypes.banner && imp.Banner != nil {
			imp.Banner = nil
			updated = true
			errs = append(errs, unsupportedMediaTypeWarning(i, openrtb_ext.BidTypeBanner))
		}
		if !allowedTypes.video && imp.Video != nil {
			imp.Video = nil
			updated = true
			errs = append(errs, unsupportedMediaTypeWarning(i, openrtb_ext.BidTypeVideo))
		}
		if !allowedTypes.audio && imp.Audio != nil {
			imp.Audio = nil
			updated = true
			errs = append(errs, unsupportedMediaTypeWarning(i, openrtb_ext.BidTypeAudio))
		}
		if !allowedTypes.native && imp.Native != nil {
			imp.Native = nil
			updated = true
			errs = append(errs, unsupportedMediaTypeWarning(i, openrtb_ext.BidTypeNative))
		}

		if hadTypes && !hasAnyTypes(&imp) {
			errs = append(errs, &errortypes.BadInput{Message: fmt.Sprintf("request.imp[%d] has no supported MediaTypes. It will be ignored", i)})
			continue
		}
		pruned = append(pruned, imp)
	}

	if !updated {
		return false, imps, nil
	}
	return true, pruned, errs
}

func unsupportedMediaTypeWarning(index int, mediaType openrtb_ext.BidType) error {
	return &errortypes.Warning{
		Message:     fmt.Sprintf("request.imp[%d] uses %s, but this bidder doesn't support it", index, mediaType),
		WarningCode: errortypes.UnsupportedMediaTypeWarningCode,
	}
}

func parseAllowedTypes(allowedTypes []openrtb_ext.BidType) (allowBanner bool, allowVideo bool, allowAudio bool, allowNative bool) {
	for _, allowedType := range allowedTypes {
		switch allowedType {
		case openrtb_ext.BidTypeBanner:
			allowBanner = true
		case openrtb_ext.BidTypeVideo:
			allowVideo = true
		case openrtb_ext.BidTypeAudio:
			allowAudio = true
		case openrtb_ext.BidTypeNative:
			allowNative = true
		}
	}
	return
}

func hasAnyTypes(imp *openrtb2.Imp) bool {
	return imp.Banner != nil || imp.Video != nil || imp.Audio != nil || imp.Native != nil
}

// Structs to handle parsed bidder info, so we aren't reparsing every request
type parsedBidderInfo struct {
	app  parsedSupports
	site parsedSupports
}

type parsedSupports struct {
	enabled bool
	banner  bool
	video   bool
	audio   bool
	native  bool
}

func parseBidderInfo(info config.BidderInfo) parsedBidderInfo {
	var parsedInfo parsedBidderInfo

	if info.Capabilities == nil {
		return parsedInfo
	}

	if info.Capabilities.App != nil {
		parsedInfo.app.enabled = true
		parsedInfo.app.banner, parsedInfo.app.video, parsedInfo.app.audio, parsedInfo.app.native = parseAllowedTypes(info.Capabilities.App.MediaTypes)
	}
	if info.Capabilities.Site != nil {
		parsedInfo.site.enabled = true
		parsedInfo.site.banner, parsedInfo.site.video, parsedInfo.site.audio, parsedInfo.site.native = parseAllowedTypes(info.Capabilities.Site.MediaTypes)
	}

	return parsedInfo
}
