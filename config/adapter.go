package config

import (
	"errors"
	"fmt"
	"strings"

	validator "github.com/asaskevich/govalidator"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
)

// Adapter holds the host-level configuration of one bidder.
type Adapter struct {
	Endpoint string `mapstructure:"endpoint"` // Required
	Disabled bool   `mapstructure:"disabled"`
	// EndpointCompression compresses outgoing request bodies. Allowed values: "" and "gzip".
	EndpointCompression string `mapstructure:"endpointcompression"`
	ExtraAdapterInfo    string `mapstructure:"extra_info"`
}

const compressionGZIP = "GZIP"

// validateAdapters validates the adapters map: every key must name a known bidder and
// every enabled adapter needs a well-formed endpoint.
func validateAdapters(adapterMap map[string]Adapter, errs []error) []error {
	for adapterName, adapter := range adapterMap {
		if _, ok := openrtb_ext.NormalizeBidderName(adapterName); !ok {
			errs = append(errs, fmt.Errorf("adapters.%s is not a known bidder", adapterName))
			continue
		}
		if adapter.Disabled {
			continue
		}
		if err := ValidateEndpoint(adapter.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("adapters.%s.endpoint: %v", adapterName, err))
		}
		if adapter.EndpointCompression != "" && !strings.EqualFold(adapter.EndpointCompression, compressionGZIP) {
			errs = append(errs, fmt.Errorf("adapters.%s.endpointcompression: %q is not supported, use \"gzip\" or leave it empty", adapterName, adapter.EndpointCompression))
		}
	}
	return errs
}

// ValidateEndpoint makes sure that an endpoint is an absolute, well-formed URL.
//
// Validating using both IsURL and IsRequestURL because IsURL allows relative paths
// whereas IsRequestURL requires absolute path but fails to check other valid URL
// format constraints.
//
// For example: IsURL will allow "abcd.com" but IsRequestURL won't
// IsRequestURL will allow "http://http://abcd.com" but IsURL won't
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.New("endpoint is empty")
	}
	if !validator.IsURL(endpoint) || !validator.IsRequestURL(endpoint) {
		return fmt.Errorf("the endpoint %q is not a valid URL", endpoint)
	}
	return nil
}
