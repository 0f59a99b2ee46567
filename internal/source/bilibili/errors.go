package bilibili

import (
	"errors"
	"fmt"
	"net/http"
)

// CodeRiskControl is the in-body code the upstream returns when a request
// was rejected by its anti-bot layer.
const CodeRiskControl = -352

// ErrRiskControl marks upstream rejections that call for an account
// rotation rather than a plain retry.
var ErrRiskControl = errors.New("risk control")

// APIError is a non-success answer from the upstream: either a bad HTTP
// status or a non-zero code in the response envelope. Account is the pool
// account the request was sent with, empty for anonymous requests.
type APIError struct {
	Endpoint string
	Status   int
	Code     int
	Message  string
	Account  string
}

func (e *APIError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("%s: http %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s: code %d: %s", e.Endpoint, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.riskCode() != 0 {
		return ErrRiskControl
	}
	return nil
}

func (e *APIError) riskCode() int {
	switch {
	case e.Status == http.StatusPreconditionFailed, e.Status == http.StatusForbidden:
		return e.Status
	case e.Code == CodeRiskControl:
		return e.Code
	}
	return 0
}

// RiskCode reports the code to record against the account when err is a
// risk-control rejection.
func RiskCode(err error) (int, bool) {
	_, code, ok := RiskRejection(err)
	return code, ok
}

// RiskRejection is RiskCode that also returns the account the rejected
// request was sent with.
func RiskRejection(err error) (account string, code int, ok bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "", 0, false
	}
	code = apiErr.riskCode()
	return apiErr.Account, code, code != 0
}

// SchemaError wraps a payload item that could not be mapped into the
// canonical form. Callers drop the item and keep going.
type SchemaError struct {
	Item string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("malformed item %q: %v", e.Item, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
