package reliability

import "errors"

// Kind is a short machine-readable failure class.
type Kind string

const (
	KindUnknown Kind = "unknown"

	// KindCapabilityUnavailable covers ASR, diarization, classification and
	// explanation backends that failed, timed out or refused the call.
	KindCapabilityUnavailable Kind = "capability_unavailable"
	// KindMalformedCapabilityOutput covers a backend that answered with
	// something unusable, such as an empty segment list.
	KindMalformedCapabilityOutput Kind = "malformed_capability_output"
	KindTransportClosed           Kind = "transport_closed"
	KindInvalidProtocolMessage    Kind = "invalid_protocol_message"
	KindAudioNotFound             Kind = "audio_not_found"
	KindAudioUnreadable           Kind = "audio_unreadable"
)

// KindError attaches a Kind to an error.
type KindError struct {
	Err  error
	Kind Kind
}

func (e KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e KindError) Unwrap() error {
	return e.Err
}

// Wrap attaches kind to err. It is a no-op if err is nil or already carries a kind.
func Wrap(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	var ke KindError
	if errors.As(err, &ke) {
		return err
	}
	return KindError{Err: err, Kind: kind}
}

// KindOf extracts the kind from err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ke KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindUnknown
}

func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
