package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"stock-sync/core/inventory"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	var v any
	syntaxErr := json.Unmarshal([]byte("{"), &v)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"Nil", nil, nil},
		{"Wrapped connect", fmt.Errorf("x: %w", ErrConnect), ErrConnect},
		{"Deadline", context.DeadlineExceeded, ErrNoReply},
		{"Dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrConnect},
		{"DNS", &net.DNSError{Err: "no such host", Name: "x"}, ErrConnect},
		{"JSON", syntaxErr, ErrMalformed},
		{"Explicit malformed", ErrMalformed, ErrMalformed},
		{"Other", errors.New("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRequestError(t *testing.T) {
	cause := errors.New("read tcp: timeout")
	var err error = &RequestError{Service: inventory.Secondary, Op: OpPush, Kind: ErrNoReply, Err: cause}
	wrapped := fmt.Errorf("sync: %w", err)

	assert.ErrorIs(t, wrapped, ErrNoReply)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "secondary push: read tcp: timeout", err.Error())

	re, ok := AsRequestError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, OpPush, re.Op)

	assert.True(t, IsAmbiguous(wrapped))
	assert.False(t, IsAmbiguous(ErrConnect))
	assert.False(t, IsAmbiguous(nil))
}
