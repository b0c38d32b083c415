package notify

import "errors"

// ErrNotConfigured marks a channel whose credentials are absent.
var ErrNotConfigured = errors.New("not configured")
