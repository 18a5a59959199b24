package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

// WriteTextfile writes the registry in the text exposition format for
// node_exporter's textfile collector. The file is replaced atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry()); err != nil {
		return &vcerrors.IOError{Op: "write metrics", Path: path, Err: err}
	}
	return nil
}
