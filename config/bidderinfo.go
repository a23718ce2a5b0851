package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"gopkg.in/yaml.v2"
)

// BidderInfos contains a mapping of bidder name to bidder info.
type BidderInfos map[string]BidderInfo

// BidderInfo specifies the static, bidder-owned metadata loaded from static/bidder-info/{bidder}.yaml.
type BidderInfo struct {
	Maintainer   *MaintainerInfo   `yaml:"maintainer" json:"maintainer"`
	Capabilities *CapabilitiesInfo `yaml:"capabilities" json:"capabilities"`
	GVLVendorID  uint16            `yaml:"gvlVendorID" json:"gvlVendorID,omitempty"`
}

// MaintainerInfo specifies the support email address for a bidder.
type MaintainerInfo struct {
	Email string `yaml:"email" json:"email"`
}

// CapabilitiesInfo specifies the supported platforms for a bidder.
type CapabilitiesInfo struct {
	App  *PlatformInfo `yaml:"app" json:"app,omitempty"`
	Site *PlatformInfo `yaml:"site" json:"site,omitempty"`
}

// PlatformInfo specifies the supported media types for a bidder.
type PlatformInfo struct {
	MediaTypes []openrtb_ext.BidType `yaml:"mediaTypes" json:"mediaTypes"`
}

// InfoReader is an interface for reading bidder info files.
type InfoReader interface {
	// Read returns the file contents keyed by bidder name.
	Read() (map[string][]byte, error)
}

// InfoReaderFromDisk reads {bidder}.yaml files from Path for every core bidder.
type InfoReaderFromDisk struct {
	Path string
}

func (r InfoReaderFromDisk) Read() (map[string][]byte, error) {
	bidderConfigs := make(map[string][]byte)
	for _, bidder := range openrtb_ext.CoreBidderNames() {
		fileName := filepath.Join(r.Path, string(bidder)+".yaml")
		data, err := os.ReadFile(fileName)
		if err != nil {
			return nil, fmt.Errorf("error reading bidder info file %s: %v", fileName, err)
		}
		bidderConfigs[string(bidder)] = data
	}
	return bidderConfigs, nil
}

// LoadBidderInfoFromDisk parses and validates the bidder info files found at path.
func LoadBidderInfoFromDisk(path string) (BidderInfos, error) {
	return LoadBidderInfo(InfoReaderFromDisk{Path: path})
}

// LoadBidderInfo parses and validates the bidder info files returned by reader.
func LoadBidderInfo(reader InfoReader) (BidderInfos, error) {
	bidderConfigs, err := reader.Read()
	if err != nil {
		return nil, err
	}

	infos := make(BidderInfos, len(bidderConfigs))
	var errs []error
	for bidderName, data := range bidderConfigs {
		var info BidderInfo
		if err := yaml.UnmarshalStrict(data, &info); err != nil {
			errs = append(errs, fmt.Errorf("error parsing config for bidder %s: %v", bidderName, err))
			continue
		}
		if err := validateBidderInfo(info); err != nil {
			errs = append(errs, fmt.Errorf("bidder %s: %v", bidderName, err))
			continue
		}
		infos[strings.ToLower(bidderName)] = info
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return infos, nil
}

func validateBidderInfo(info BidderInfo) error {
	if info.Maintainer == nil || info.Maintainer.Email == "" {
		return errors.New("missing required field: maintainer.email")
	}
	if info.Capabilities == nil || (info.Capabilities.App == nil && info.Capabilities.Site == nil) {
		return errors.New("at least one of capabilities.app or capabilities.site must be specified")
	}
	if err := validatePlatformInfo(info.Capabilities.App); err != nil {
		return fmt.Errorf("capabilities.app: %v", err)
	}
	if err := validatePlatformInfo(info.Capabilities.Site); err != nil {
		return fmt.Errorf("capabilities.site: %v", err)
	}
	return nil
}

func validatePlatformInfo(info *PlatformInfo) error {
	if info == nil {
		return nil
	}
	if len(info.MediaTypes) == 0 {
		return errors.New("at least one media type needs to be specified")
	}
	for _, mediaType := range info.MediaTypes {
		if _, err := openrtb_ext.ParseBidType(string(mediaType)); err != nil {
			return fmt.Errorf("unrecognized media type %q", mediaType)
		}
	}
	return nil
}
