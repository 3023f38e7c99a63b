package reachkit

import "errors"

var (
	// ErrInvalidSMTPOptions is returned when WithSMTP received a port
	// outside 1-65535 or a step sequence with an unknown step.
	ErrInvalidSMTPOptions = errors.New("reachkit: invalid SMTPOptions")

	// ErrInvalidProxy is returned when the proxy URI is not a usable
	// socks5://host:port address.
	ErrInvalidProxy = errors.New("reachkit: proxy URI must be socks5://host:port")
)
