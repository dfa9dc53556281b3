package types

import "fmt"

// Document is a caller-supplied source file. It is read-only for the
// duration of processing.
type Document struct {
	Path string // Unique key within a batch
	Hash string // Opaque content identifier, copied onto every chunk
	Text string
}

// Validate checks the fields the core relies on.
func (d *Document) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("%w: document path is required", ErrInvalidArgument)
	}
	return nil
}
