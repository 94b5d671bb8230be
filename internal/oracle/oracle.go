// Package oracle wraps the language model behind a narrow completion
// interface. Callers treat completions as untrusted text; everything
// downstream (extraction, repair, validation) assumes the oracle can return
// garbage.
package oracle

import (
	"context"
	"errors"
)

// ErrUnavailable marks transport or provider failures. Callers fall back to
// deterministic behavior (canned summaries, skipped insights) when they see
// it.
var ErrUnavailable = errors.New("oracle: unavailable")

type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
