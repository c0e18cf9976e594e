package srtp

import (
	"errors"
)

var (
	ErrInvalidKeyLength     = errors.New("invalid key or salt length")      // ErrInvalidKeyLength will raise if key/salt do not match the profile, a configuration error.
	ErrInvalidDirection     = errors.New("invalid transform direction")     // ErrInvalidDirection will raise if the direction is not outbound or inbound.
	ErrWrongDirection       = errors.New("operation not for this direction") // ErrWrongDirection will raise if a protect is called on an inbound transform or vice versa.
	ErrShortBuffer          = errors.New("buffer lacks room for auth tag")  // ErrShortBuffer will raise if the packet buffer has no spare trailing capacity.
	ErrMalformedPacket      = errors.New("malformed packet")                // ErrMalformedPacket will raise on packets too short or syntactically broken.
	ErrAuthenticationFailed = errors.New("packet authentication failed")    // ErrAuthenticationFailed will raise when the auth tag does not verify.
	ErrReplayOrOutOfWindow  = errors.New("replayed or out-of-window packet") // ErrReplayOrOutOfWindow will raise for a seen or too-old sequence index.
)
