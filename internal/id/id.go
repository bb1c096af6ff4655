package id

import "github.com/google/uuid"

// New returns a random UUIDv4 string used for job and upload identifiers.
func New() string {
	return uuid.NewString()
}
