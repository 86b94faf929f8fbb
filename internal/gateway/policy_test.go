package gateway

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"
)

func TestResumableCloseCode(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{websocket.CloseNormalClosure, false},
		{websocket.CloseGoingAway, false},
		{CloseAuthenticationFailed, false},
		{CloseInvalidShard, false},
		{CloseShardingRequired, false},
		{CloseInvalidAPIVersion, false},
		{CloseInvalidIntents, false},
		{CloseDisallowedIntents, false},
		{CloseUnknownError, true},
		{CloseRateLimited, true},
		{CloseSessionTimedOut, true},
		{CloseInvalidSeq, true},
		{websocket.CloseAbnormalClosure, true},
	}
	for _, c := range cases {
		if got := ResumableCloseCode(c.code); got != c.want {
			t.Errorf("ResumableCloseCode(%d): expected %v, got %v", c.code, c.want, got)
		}
	}
}

func TestCloseCode(t *testing.T) {
	err := &websocket.CloseError{Code: CloseSessionTimedOut}
	if got := closeCode(err); got != CloseSessionTimedOut {
		t.Errorf("Expected %d, got %d", CloseSessionTimedOut, got)
	}
	if got := closeCode(errors.New("connection reset")); got != websocket.CloseAbnormalClosure {
		t.Errorf("Expected %d for a non-close error, got %d", websocket.CloseAbnormalClosure, got)
	}
}
