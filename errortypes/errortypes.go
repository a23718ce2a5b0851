package errortypes

// Timeout should be used to flag that a bidder failed to return a response because the
// context deadline expired before a result was received.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

func (err *Timeout) Severity() Severity {
	return SeverityFatal
}

// BadInput should be used when returning errors which are caused by bad input.
// It should _not_ be used if the error is a server-side issue (e.g. failed to send the external request).
//
// Bidders report per-impression problems with BadInput and keep going, so a BadInput in a
// bidder's error list does not by itself mean the bidder produced nothing.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

// BadServerResponse should be used when returning errors which are caused by bad/unexpected behavior on the remote server.
//
// For example:
//
//   - The external server responded with a 500
//   - The external server gave a malformed or unexpected response.
//
// These should not be used to log _connection_ errors (e.g. "couldn't find host"),
// which may indicate config issues for the host company.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}

// FailedToRequestBids covers the case where a bidder produced neither requests nor errors.
// That should not happen in practice and signals a poorly coded bidder.
type FailedToRequestBids struct {
	Message string
}

func (err *FailedToRequestBids) Error() string {
	return err.Message
}

func (err *FailedToRequestBids) Code() int {
	return FailedToRequestBidsErrorCode
}

func (err *FailedToRequestBids) Severity() Severity {
	return SeverityFatal
}

// FailedToUnmarshal is returned by jsonutil when a payload cannot be decoded.
type FailedToUnmarshal struct {
	Message string
}

func (err *FailedToUnmarshal) Error() string {
	return err.Message
}

func (err *FailedToUnmarshal) Code() int {
	return FailedToUnmarshalErrorCode
}

func (err *FailedToUnmarshal) Severity() Severity {
	return SeverityFatal
}

// FailedToMarshal is returned by jsonutil when a value cannot be encoded.
type FailedToMarshal struct {
	Message string
}

func (err *FailedToMarshal) Error() string {
	return err.Message
}

func (err *FailedToMarshal) Code() int {
	return FailedToMarshalErrorCode
}

func (err *FailedToMarshal) Severity() Severity {
	return SeverityFatal
}

// Warning is a generic non-fatal error.
type Warning struct {
	Message     string
	WarningCode int
}

func (err *Warning) Error() string {
	return err.Message
}

func (err *Warning) Code() int {
	return err.WarningCode
}

func (err *Warning) Severity() Severity {
	return SeverityWarning
}
