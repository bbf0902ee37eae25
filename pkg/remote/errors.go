package remote

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/valyala/fasthttp"
)

// HTTPError is a non-2xx response from the remote.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

var (
	ErrConnectionRefused = errors.New("connection refused: server is not running or not reachable")
	ErrHostNotFound      = errors.New("host not found: check the server address")
	ErrTimeout           = errors.New("connection timeout: server took too long to respond")
	ErrConnectionReset   = errors.New("connection reset: network connection was interrupted")
	ErrEndpointMissing   = errors.New("server found but /threads endpoint not available: check server setup")
	ErrServerFailure     = errors.New("server error: messaging server is having issues")
)

// Classify maps transport failures and status codes onto the readable
// connection errors above. Unknown errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var he *HTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == fasthttp.StatusNotFound:
			return fmt.Errorf("%w (%v)", ErrEndpointMissing, err)
		case he.StatusCode >= 500:
			return fmt.Errorf("%w (%v)", ErrServerFailure, err)
		}
		return err
	}
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w (%v)", ErrConnectionRefused, err)
	case errors.As(err, &dnsErr):
		return fmt.Errorf("%w (%v)", ErrHostNotFound, err)
	case errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("%w (%v)", ErrConnectionReset, err)
	case IsTimeout(err), errors.Is(err, fasthttp.ErrDialTimeout):
		return fmt.Errorf("%w (%v)", ErrTimeout, err)
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return fmt.Errorf("%w (%v)", ErrTimeout, err)
	}
	return err
}
