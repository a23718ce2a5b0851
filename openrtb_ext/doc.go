/*
Package openrtb_ext defines the Prebid extensions to the OpenRTB 2.x types which the Admaru
bidder service reads and writes.

Most of these are defined by simple contract classes: the bid type carried in
bid.ext.prebid.type, the bidder names used as keys in response extensions, and the
debug/error extensions written to bidresponse.ext.
*/
package openrtb_ext
