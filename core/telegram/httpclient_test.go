package telegram

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newSendRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://api.telegram.org/bot1:x/sendMessage", strings.NewReader("chat_id=1&text=hi"))
	require.NoError(t, err)
	return req
}

func TestRetryTransportRepeatsFailedDials(t *testing.T) {
	calls := 0
	rt := &retryTransport{maxRetries: 2, base: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
		}
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})}

	resp, err := rt.RoundTrip(newSendRequest(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestRetryTransportDoesNotResendWrittenRequests(t *testing.T) {
	cases := map[string]error{
		"reset":     &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET},
		"truncated": fmt.Errorf("read response: %w", syscall.ECONNRESET),
	}
	for name, failure := range cases {
		t.Run(name, func(t *testing.T) {
			calls := 0
			rt := &retryTransport{maxRetries: 3, base: roundTripFunc(func(*http.Request) (*http.Response, error) {
				calls++
				return nil, failure
			})}

			_, err := rt.RoundTrip(newSendRequest(t))
			assert.ErrorIs(t, err, syscall.ECONNRESET)
			assert.Equal(t, 1, calls)
		})
	}
}
