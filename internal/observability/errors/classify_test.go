package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/crew-api/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"app error", apperrors.Unavailable("runner closed"), "unavailable"},
		{"wrapped app error", fmt.Errorf("submit: %w", apperrors.NotFound("x")), "not_found"},
		{"plain", goerrors.New("boom"), "errors_errorstring"},
		{"net", fmt.Errorf("post: %w", &net.OpError{Op: "dial", Err: goerrors.New("refused")}), "errors_errorstring"},
		{"dns", &net.DNSError{Name: "example.invalid"}, "net_dnserror"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
