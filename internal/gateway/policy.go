package gateway

import (
	"errors"

	"github.com/gorilla/websocket"
)

// Close codes the server uses when it drops a connection.
const (
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSeq           = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

// nonResumableCloseCodes are rejections that invalidate the stored
// session: replaying the same handshake cannot succeed.
var nonResumableCloseCodes = map[int]bool{
	CloseAuthenticationFailed: true,
	CloseInvalidShard:         true,
	CloseShardingRequired:     true,
	CloseInvalidAPIVersion:    true,
	CloseInvalidIntents:       true,
	CloseDisallowedIntents:    true,
}

// ResumableCloseCode reports whether a session may be resumed after the
// socket closed with the given code. Clean closes (1000, 1001) end the
// session on the server side, so they forbid resume as well.
func ResumableCloseCode(code int) bool {
	if code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway {
		return false
	}
	return !nonResumableCloseCodes[code]
}

// closeCode extracts the close code from a read error. Errors without
// a close frame (network drops, local close) count as abnormal.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
