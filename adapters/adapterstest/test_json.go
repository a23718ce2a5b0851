package adapterstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-server-admaru/adapters"
	"github.com/prebid/prebid-server-admaru/openrtb_ext"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// RunJSONBidderTest is a helper method intended to unit test Bidders' adapters.
// It requires that:
//
//  1. Bidders communicate with external servers over HTTP.
//  2. The HTTP request bodies are legal JSON.
//
// Although the project does not require it, it's a good idea to have a test case for each of the following
// in <rootDir>/exemplary/*.json:
//
//  1. A bid request with a banner imp
//  2. A bid request with a video imp
//  3. A bid request with a native imp
//  4. A bid request with an audio imp
//
// Files in <rootDir>/supplemental/*.json may expect errors; exemplary specs must not.
// See the "spec" struct below for the file format.
func RunJSONBidderTest(t *testing.T, rootDir string, bidder adapters.Bidder) {
	runTests(t, filepath.Join(rootDir, "exemplary"), bidder, false)
	runTests(t, filepath.Join(rootDir, "supplemental"), bidder, true)
}

func runTests(t *testing.T, directory string, bidder adapters.Bidder, allowErrors bool) {
	specFiles, err := os.ReadDir(directory)
	if err != nil {
		return
	}

	for _, specFile := range specFiles {
		if specFile.IsDir() || filepath.Ext(specFile.Name()) != ".json" {
			continue
		}
		fileName := filepath.Join(directory, specFile.Name())
		specData, err := loadFile(fileName)
		if err != nil {
			t.Fatalf("Failed to load contents of file %s: %v", fileName, err)
		}

		if !allowErrors && specData.expectsErrors() {
			t.Fatalf("Exemplary spec %s must not expect errors.", fileName)
		}

		t.Run(specFile.Name(), func(t *testing.T) {
			runSpec(t, fileName, specData, bidder)
		})
	}
}

// loadFile reads and parses a file as a test case. If something goes wrong, it returns an error.
func loadFile(filename string) (*testSpec, error) {
	specData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to read file %s: %v", filename, err)
	}

	var spec testSpec
	if err := json.Unmarshal(specData, &spec); err != nil {
		return nil, fmt.Errorf("Failed to unmarshal JSON from file: %v", err)
	}

	return &spec, nil
}

// runSpec runs a single test case. It will make sure:
//
//   - That the Bidder does not return nil HTTP requests, bids, or errors inside their lists
//   - That the Bidder's HTTP calls match the spec's expectations.
//   - That the Bidder's Bids match the spec's expectations
//   - That the Bidder's errors match the spec's expectations
func runSpec(t *testing.T, filename string, spec *testSpec, bidder adapters.Bidder) {
	reqInfo := adapters.ExtraRequestInfo{BidderCoreName: openrtb_ext.BidderAdmaru}

	requests, errs := bidder.MakeRequests(&spec.BidRequest, &reqInfo)
	diffErrorLists(t, fmt.Sprintf("%s: MakeRequests", filename), errs, spec.MakeRequestErrors)
	diffHttpRequestLists(t, filename, requests, spec.HttpCalls)

	bidResponses := make([]*adapters.BidderResponse, 0)
	var bidsErrs = make([]error, 0, len(spec.MakeBidsErrors))
	for i := 0; i < len(spec.HttpCalls) && i < len(requests); i++ {
		bids, theseErrs := bidder.MakeBids(&spec.BidRequest, requests[i], spec.HttpCalls[i].Response.ToResponseData())
		bidsErrs = append(bidsErrs, theseErrs...)
		if bids != nil {
			bidResponses = append(bidResponses, bids)
		}
	}

	diffErrorLists(t, fmt.Sprintf("%s: MakeBids", filename), bidsErrs, spec.MakeBidsErrors)
	diffBidResponses(t, filename, bidResponses, spec.BidResponses)
}

type testSpec struct {
	BidRequest        openrtb2.BidRequest     `json:"mockBidRequest"`
	HttpCalls         []httpCall              `json:"httpCalls"`
	BidResponses      []expectedBidResponse   `json:"expectedBidResponses"`
	MakeRequestErrors []testSpecExpectedError `json:"expectedMakeRequestsErrors"`
	MakeBidsErrors    []testSpecExpectedError `json:"expectedMakeBidsErrors"`
}

type testSpecExpectedError struct {
	Value      string `json:"value"`
	Comparison string `json:"comparison"`
}

func (spec *testSpec) expectsErrors() bool {
	return len(spec.MakeRequestErrors) > 0 || len(spec.MakeBidsErrors) > 0
}

type httpCall struct {
	Request  httpRequest  `json:"expectedRequest"`
	Response httpResponse `json:"mockResponse"`
}

type httpRequest struct {
	Body    json.RawMessage `json:"body"`
	Uri     string          `json:"uri"`
	Headers http.Header     `json:"headers"`
	ImpIDs  []string        `json:"impIDs"`
}

type httpResponse struct {
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body"`
	Headers http.Header     `json:"headers"`
}

func (resp *httpResponse) ToResponseData() *adapters.ResponseData {
	return &adapters.ResponseData{
		StatusCode: resp.Status,
		Body:       resp.Body,
		Headers:    resp.Headers,
	}
}

type expectedBidResponse struct {
	Bids     []expectedBid `json:"bids"`
	Currency string        `json:"currency"`
}

type expectedBid struct {
	Bid  json.RawMessage `json:"bid"`
	Type string          `json:"type"`
}

// ---------------------------------------
// Lots of ugly, repetitive code below here.
//
// reflect.DeepEquals doesn't work because each OpenRTB field has an `ext []byte`, but we really care if those are JSON-equal

// diffHttpRequests compares the actual HTTP request data to the expected one.
// It assumes that the request bodies are JSON
func diffHttpRequestLists(t *testing.T, filename string, actual []*adapters.RequestData, expected []httpCall) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Fatalf("%s: MakeRequests had wrong request count. Expected %d, got %d", filename, len(expected), len(actual))
	}
	for i := 0; i < len(expected); i++ {
		diffHttpRequests(t, fmt.Sprintf("%s: httpRequest[%d]", filename, i), actual[i], &(expected[i].Request))
	}
}

func diffErrorLists(t *testing.T, description string, actual []error, expected []testSpecExpectedError) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Fatalf("%s had wrong error count. Expected %d, got %d (%v)", description, len(expected), len(actual), actual)
	}
	for i := 0; i < len(actual); i++ {
		if expected[i].Comparison == "literal" {
			if expected[i].Value != actual[i].Error() {
				t.Errorf(`%s error[%d] had wrong message. Expected "%s", got "%s"`, description, i, expected[i].Value, actual[i].Error())
			}
		} else if expected[i].Comparison == "regex" {
			if matched, _ := regexp.MatchString(expected[i].Value, actual[i].Error()); !matched {
				t.Errorf(`%s error[%d] had wrong message. Expected match with regex "%s", got "%s"`, description, i, expected[i].Value, actual[i].Error())
			}
		} else {
			t.Fatalf(`invalid comparison type "%s"`, expected[i].Comparison)
		}
	}
}

func diffBidResponses(t *testing.T, filename string, actual []*adapters.BidderResponse, expected []expectedBidResponse) {
	t.Helper()

	if len(actual) != len(expected) {
		t.Fatalf("%s: MakeBids returned wrong bid response count. Expected %d, got %d", filename, len(expected), len(actual))
	}
	for i := 0; i < len(actual); i++ {
		if expected[i].Currency != actual[i].Currency {
			t.Errorf(`%s: MakeBids returned wrong currency. Expected "%s", got "%s"`, filename, expected[i].Currency, actual[i].Currency)
		}
		diffBidLists(t, filename, actual[i].Bids, expected[i].Bids)
	}
}

func diffBidLists(t *testing.T, filename string, actual []*adapters.TypedBid, expected []expectedBid) {
	t.Helper()

	if len(actual) != len(expected) {
		t.Fatalf("%s: MakeBids returned wrong bid count. Expected %d, got %d", filename, len(expected), len(actual))
	}
	for i := 0; i < len(actual); i++ {
		diffBids(t, fmt.Sprintf("%s: typedBid[%d]", filename, i), actual[i], &(expected[i]))
	}
}

// diffHttpRequests compares the actual HTTP request data to the expected one.
// It assumes that the request bodies are JSON
func diffHttpRequests(t *testing.T, description string, actual *adapters.RequestData, expected *httpRequest) {
	if actual == nil {
		t.Errorf("Bidders cannot return nil HTTP calls. %s was nil.", description)
		return
	}

	if expected.Uri != actual.Uri {
		t.Errorf(`%s.uri "%s" does not match expected "%s."`, description, actual.Uri, expected.Uri)
	}

	if expected.Headers != nil {
		diffHeaders(t, description, actual.Headers, expected.Headers)
	}

	if expected.ImpIDs != nil {
		diffImpIDs(t, description, actual.ImpIDs, expected.ImpIDs)
	}

	diffJson(t, description, actual.Body, expected.Body)
}

func diffHeaders(t *testing.T, description string, actual http.Header, expected http.Header) {
	actualHeader, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("%s failed to marshal actual Http Request Header. %v", description, err)
	}
	expectedHeader, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("%s failed to marshal expected Http Request Header. %v", description, err)
	}
	diffJson(t, description+".headers", actualHeader, expectedHeader)
}

func diffImpIDs(t *testing.T, description string, actual []string, expected []string) {
	if len(actual) != len(expected) {
		t.Errorf("%s.impIDs had wrong length. Expected %v, got %v", description, expected, actual)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("%s.impIDs[%d] was %q, expected %q", description, i, actual[i], expected[i])
		}
	}
}

func diffBids(t *testing.T, description string, actual *adapters.TypedBid, expected *expectedBid) {
	if actual == nil {
		t.Errorf("Bidders cannot return nil TypedBids. %s was nil.", description)
		return
	}

	if string(actual.BidType) != expected.Type {
		t.Errorf(`%s.type "%s" does not match expected "%s."`, description, string(actual.BidType), expected.Type)
	}

	diffOrtbBids(t, fmt.Sprintf("%s.bid", description), actual.Bid, expected.Bid)
}

// diffOrtbBids compares the actual Bid made by the adapter to the expectation from the JSON file.
func diffOrtbBids(t *testing.T, description string, actual *openrtb2.Bid, expected json.RawMessage) {
	if actual == nil {
		t.Errorf("Bidders cannot return nil Bids. %s was nil.", description)
		return
	}

	actualJson, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("%s failed to marshal actual Bid into JSON. %v", description, err)
	}

	diffJson(t, description, actualJson, expected)
}

// diffJson compares two JSON byte arrays for structural equality. It will produce an error if either
// byte array is not actually JSON.
func diffJson(t *testing.T, description string, actual []byte, expected []byte) {
	if len(actual) == 0 && len(expected) == 0 {
		return
	}
	if len(actual) == 0 || len(expected) == 0 {
		t.Fatalf("%s json diff failed. Expected %d bytes in body, but got %d.", description, len(expected), len(actual))
	}
	diff, err := gojsondiff.New().Compare(actual, expected)
	if err != nil {
		t.Fatalf("%s json diff failed. %v", description, err)
	}

	if diff.Modified() {
		var left interface{}
		if err := json.Unmarshal(actual, &left); err != nil {
			t.Fatalf("%s json did not match, but unmarshalling failed. %v", description, err)
		}
		printer := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
			ShowArrayIndex: true,
		})
		output, err := printer.Format(diff)
		if err != nil {
			t.Errorf("%s did not match, but diff formatting failed. %v", description, err)
		} else {
			t.Errorf("%s json did not match expected.\n\n%s", description, output)
		}
	}
}
