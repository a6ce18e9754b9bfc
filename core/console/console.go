// Package console hands off operator input lines to the control loop.
//
// A single goroutine performs the blocking reads and sends each complete,
// non-empty line over a channel. It never touches agent state.
package console

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Lines starts reading r and returns a channel of trimmed, non-empty lines.
// The channel is closed at end of input or when ctx is cancelled.
func Lines(ctx context.Context, r io.Reader, logger *zap.Logger) <-chan string {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(chan string)

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("Console input failed", zap.Error(err))
		}
	}()

	return out
}

// Merge forwards lines from every source into one channel, closed once all
// sources are closed or ctx is cancelled.
func Merge(ctx context.Context, sources ...<-chan string) <-chan string {
	out := make(chan string)
	done := make(chan struct{})

	for _, src := range sources {
		go func(src <-chan string) {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case line, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- line:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		for range sources {
			<-done
		}
		close(out)
	}()
	return out
}
