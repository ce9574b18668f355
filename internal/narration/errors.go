// Package narration turns text into speech through the Cartesia cloud service
// or the operating system speech engine.
package narration

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// Narration failures. Every error returned by this package matches one of
// these with errors.Is.
var (
	ErrEmptyInput        = errors.New("text is empty")
	ErrMissingCredential = errors.New("cartesia api key is not configured")
	ErrConnectionFailed  = errors.New("failed to connect to narration service")
	ErrRequestFailed     = errors.New("narration request failed")
	ErrHTTPStatus        = errors.New("narration service returned non-OK status")
	ErrEmptyResponse     = errors.New("narration service returned no audio")
	ErrEngineUnavailable = errors.New("speech engine is unavailable")
	ErrIndexOutOfRange   = errors.New("voice index out of range")
	ErrFileWriteFailed   = errors.New("failed to write audio file")
	ErrNoVoiceSelected   = errors.New("no voice available")
	ErrUnknownVoice      = errors.New("unknown voice")
	ErrPlaybackFailed    = errors.New("audio playback failed")
)

// HTTPStatusError carries the status code of a rejected request.
type HTTPStatusError struct {
	Code int
	Body string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d", ErrHTTPStatus, e.Code)
	}

	return fmt.Sprintf("%s: %d: %s", ErrHTTPStatus, e.Code, e.Body)
}

// Is reports whether target is ErrHTTPStatus.
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// Kind returns a short label for err, used in metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrConnectionFailed):
		return "connection_failed"
	case errors.Is(err, ErrHTTPStatus):
		return "http_status"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrRequestFailed):
		return "request_failed"
	case errors.Is(err, ErrEngineUnavailable):
		return "engine_unavailable"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, ErrFileWriteFailed):
		return "file_write_failed"
	case errors.Is(err, ErrNoVoiceSelected):
		return "no_voice"
	case errors.Is(err, ErrUnknownVoice):
		return "unknown_voice"
	case errors.Is(err, ErrPlaybackFailed):
		return "playback_failed"
	default:
		return "other"
	}
}

// classifyTransportError separates failures to reach the service from
// failures during the exchange.
func classifyTransportError(err error) error {
	var (
		dnsErr     *net.DNSError
		opErr      *net.OpError
		headerErr  tls.RecordHeaderError
		verifyErr  *tls.CertificateVerificationError
		unknownErr x509.UnknownAuthorityError
	)

	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr) && opErr.Op == "dial",
		errors.As(err, &headerErr),
		errors.As(err, &verifyErr),
		errors.As(err, &unknownErr):
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	default:
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
}
