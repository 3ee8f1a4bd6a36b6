package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Request layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrRateLimit   = "E_RATE_LIMIT"
	ErrNotLoaded   = "E_NOT_LOADED"
	ErrOutOfBounds = "E_OUT_OF_BOUNDS"
	ErrBusy        = "E_BUSY"
	ErrTimeout     = "E_TIMEOUT"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrRateLimit:       {},
	ErrNotLoaded:       {},
	ErrOutOfBounds:     {},
	ErrBusy:            {},
	ErrTimeout:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
