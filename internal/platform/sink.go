// Package platform creates tasks on external task platforms and runs the
// platform manager consumer.
package platform

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/taskflow/internal/bus"
	"github.com/alfredjeanlab/taskflow/internal/model"
)

// Sink creates one task on an external platform and returns the platform's
// reference for it. Implementations classify failures: errors wrapped with
// bus.Permanent are recorded and never retried, everything else is retried
// under the delivery policy.
type Sink interface {
	Name() model.Platform
	Create(ctx context.Context, task *model.ExtractedTask) (string, error)
}

// classifyStatus turns an HTTP response status into a sink error. Client
// errors won't change on retry; timeouts, rate limits, and server errors
// might.
func classifyStatus(platform model.Platform, status int, body string) error {
	err := fmt.Errorf("%s: status %d: %s", platform, status, body)
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return err
	case status >= 500:
		return err
	case status >= 400:
		return bus.Permanent(err)
	default:
		return err
	}
}
