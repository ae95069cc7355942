package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGELFWriter opens a UDP GELF writer to a Graylog input at address.
// Each write becomes one GELF message.
func NewGELFWriter(address, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("creating gelf writer for %s: %w", address, err)
	}
	w.Facility = facility
	return w, nil
}
