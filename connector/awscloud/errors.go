package awscloud

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/finopskit/kosten/connector"
)

// classify maps AWS SDK errors onto the connector taxonomy so the
// orchestrator can pick the right retry behavior.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return connector.Transient(op, err)
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return connector.Transient(op, err)
	}

	switch apiErr.ErrorCode() {
	case "Throttling", "ThrottlingException", "RequestLimitExceeded",
		"TooManyRequestsException", "SlowDown":
		return connector.RateLimited(op, retryAfterFrom(err), err)
	case "UnauthorizedOperation", "AuthFailure", "AccessDenied",
		"AccessDeniedException", "InvalidClientTokenId", "ExpiredToken",
		"ExpiredTokenException", "SignatureDoesNotMatch":
		return connector.Unauthorized(op, err)
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.HTTPStatusCode() == http.StatusTooManyRequests:
			return connector.RateLimited(op, retryAfterFrom(err), err)
		case respErr.HTTPStatusCode() == http.StatusUnauthorized,
			respErr.HTTPStatusCode() == http.StatusForbidden:
			return connector.Unauthorized(op, err)
		case respErr.HTTPStatusCode() == http.StatusNotFound:
			return connector.Permanent(op, err)
		}
	}

	if apiErr.ErrorFault() == smithy.FaultClient {
		return connector.Permanent(op, err)
	}
	return connector.Transient(op, err)
}

// retryAfterFrom pulls the Retry-After header out of a throttled
// response, zero when absent.
func retryAfterFrom(err error) time.Duration {
	var respErr *smithyhttp.ResponseError
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return 0
	}
	header := respErr.Response.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, parseErr := strconv.Atoi(header)
	if parseErr != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
