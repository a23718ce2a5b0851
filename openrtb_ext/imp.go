package openrtb_ext

import "github.com/prebid/openrtb/v20/openrtb2"

// GetImpIDs returns the ids of the given imps, keeping their order.
func GetImpIDs(imps []openrtb2.Imp) []string {
	if imps == nil {
		return nil
	}

	impIDs := make([]string, len(imps))
	for i := range imps {
		impIDs[i] = imps[i].ID
	}
	return impIDs
}
