package source

import (
	"context"
	"errors"

	"github.com/alanedwardes/remote-playlists/internal/fetch"
	"github.com/alanedwardes/remote-playlists/internal/mediaselector"
)

// Outcome is the host-visible class of a Build or Resolve result.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeUnavailable      Outcome = "unavailable"        // upstream failure or undecodable body
	OutcomeNoPlayableStream Outcome = "no_playable_stream" // manifest decoded but nothing acceptable
	OutcomeCanceled         Outcome = "canceled"
	OutcomeInvalid          Outcome = "invalid" // bad descriptor or config
)

// Classify maps an error from Build or Resolve to an Outcome.
// Cancellation wins over everything else.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, fetch.ErrUpstream), errors.Is(err, fetch.ErrMalformedResponse):
		return OutcomeUnavailable
	case errors.Is(err, mediaselector.ErrNoVideoTrack),
		errors.Is(err, mediaselector.ErrNoAcceptableConnection),
		errors.Is(err, ErrUnknownIdentifier):
		return OutcomeNoPlayableStream
	}
	return OutcomeInvalid
}
