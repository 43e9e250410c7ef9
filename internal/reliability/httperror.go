package reliability

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPError carries an upstream HTTP status so retry classification can see it.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, body)
}

// IsRetryable classifies an error for RetryOnce. HTTP errors retry on the
// usual transient statuses; anything else is treated as permanent.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return IsRetryableHTTPStatus(httpErr.Status)
	}
	return false
}
