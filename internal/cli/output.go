package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// jobOutput is what every job command prints.
type jobOutput struct {
	Message string `json:"message"`
	Failed  bool   `json:"failed"`
	Count   *int   `json:"count,omitempty"`
}

func writeOutput(w io.Writer, format string, out jobOutput) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	_, err := fmt.Fprintln(w, out.Message)
	return err
}

// errJobFailed makes the process exit non-zero once the summary is printed.
var errJobFailed = errors.New("job finished with errors")
