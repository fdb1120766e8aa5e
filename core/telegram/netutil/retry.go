// Package netutil classifies transport errors of Bot API calls.
package netutil

import (
	"errors"
	"net"
	"syscall"
)

// ShouldRetry reports whether a request failed before it reached Telegram:
// refused connections, DNS failures and dial timeouts. Errors raised after the
// request was written (resets, truncated responses, response timeouts) are not
// retried because sendMessage is not idempotent.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout || dnsErr.IsNotFound
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
