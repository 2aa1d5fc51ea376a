// Package shields classifies upstream safety shields into input and
// output sets by identifier prefix (spec §3 "shield identifier schema",
// §4.H Component H).
package shields

import (
	"log/slog"
	"strings"
)

const (
	prefixInOut  = "inout_"
	prefixOutput = "output_"
)

// Classify partitions shield identifiers: "inout_*" applies to both
// directions, "output_*" applies to outputs only, everything else is an
// input shield. If both resulting lists are empty, Classify logs that
// safety is disabled and returns empty (non-nil) slices so callers can
// range over them unconditionally.
func Classify(ids []string) (input, output []string) {
	input = []string{}
	output = []string{}

	for _, id := range ids {
		switch {
		case strings.HasPrefix(id, prefixInOut):
			input = append(input, id)
			output = append(output, id)
		case strings.HasPrefix(id, prefixOutput):
			output = append(output, id)
		default:
			input = append(input, id)
		}
	}

	if len(input) == 0 && len(output) == 0 {
		slog.Warn("shields: safety disabled — no input or output shields configured")
	}
	return input, output
}
