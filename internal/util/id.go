package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4, optionally prefixed as "prefix_<uuid>".
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
