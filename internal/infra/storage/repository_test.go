package storage

import (
	"fmt"
	"testing"

	"github.com/scanpipe/scanpipe/internal/faults"
)

func TestSentinelErrorsClassifyPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"job not found", ErrJobNotFound},
		{"duplicate job", ErrDuplicateJob},
		{"status conflict", ErrStatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if kind := faults.KindOf(tt.err); kind != faults.KindPermanent {
				t.Errorf("KindOf(%v) = %v, want permanent", tt.err, kind)
			}
			if faults.Retryable(tt.err) {
				t.Errorf("%v reported retryable", tt.err)
			}

			wrapped := fmt.Errorf("update status: %w", tt.err)
			if kind := faults.KindOf(wrapped); kind != faults.KindPermanent {
				t.Errorf("KindOf(wrapped %v) = %v, want permanent", tt.err, kind)
			}
		})
	}
}
