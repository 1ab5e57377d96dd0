// Package resilience implements the vendor-neutral failure taxonomy, the
// sliding-window rate limiter and the retrying executor every provider
// adapter runs its calls through.
package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

// Classifier maps a vendor status code and body onto an error kind. Each
// adapter supplies one; most start from DefaultClassifier.
type Classifier func(status int, payload []byte) model.ErrorKind

// DefaultClassifier applies ClassifyStatus and ignores the payload.
func DefaultClassifier(status int, _ []byte) model.ErrorKind {
	return ClassifyStatus(status)
}

// ClassifyStatus is the status mapping shared by all vendors.
func ClassifyStatus(status int) model.ErrorKind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return model.KindValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return model.KindAuthentication
	case status == http.StatusNotFound:
		return model.KindNotFound
	case status == http.StatusConflict:
		return model.KindConflict
	case status == http.StatusTooManyRequests:
		return model.KindRateLimit
	case status >= 500 && status <= 599:
		return model.KindServerError
	}
	return model.KindUnknown
}

// ParseRetryAfter reads the vendor's backoff hint. Retry-After may be delta
// seconds or an HTTP date; X-RateLimit-Reset is a unix timestamp. Returns zero
// when no usable hint is present.
func ParseRetryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			if seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
			return 0
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}

// FromStatus builds the NormalizedError for a non-2xx vendor reply.
func FromStatus(classify Classifier, status int, header http.Header, body []byte, message string, now time.Time) *model.NormalizedError {
	if classify == nil {
		classify = DefaultClassifier
	}
	kind := classify(status, body)
	if message == "" {
		message = http.StatusText(status)
	}
	ne := &model.NormalizedError{
		Kind:             kind,
		Message:          message,
		VendorStatusCode: status,
		VendorPayload:    body,
	}
	if kind == model.KindRateLimit {
		ne.RetryAfter = ParseRetryAfter(header, now)
	}
	return ne
}

// FromError normalizes a failure that did not come with a vendor status.
// Errors already normalized pass through unchanged.
func FromError(err error) *model.NormalizedError {
	if err == nil {
		return nil
	}
	if ne, ok := model.AsNormalized(err); ok {
		return ne
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &model.NormalizedError{Kind: model.KindNetwork, Message: "timeout", Cause: err}
	case errors.Is(err, context.Canceled):
		return &model.NormalizedError{Kind: model.KindNetwork, Message: "canceled", Cause: err}
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return &model.NormalizedError{Kind: model.KindNetwork, Message: "connection closed", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.NormalizedError{Kind: model.KindNetwork, Message: netErr.Error(), Cause: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &model.NormalizedError{Kind: model.KindNetwork, Message: urlErr.Error(), Cause: err}
	}

	return &model.NormalizedError{Kind: model.KindUnknown, Message: err.Error(), Cause: err}
}
