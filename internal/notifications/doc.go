// Package notifications posts sync outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the workflow can notify unconditionally. Messages are plain text with the
// title, tags, and priority carried in ntfy headers.
package notifications
