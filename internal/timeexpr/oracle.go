package timeexpr

import (
	"context"
	"time"
)

// Oracle resolves vague human phrases ("sometime soon", "later this week")
// that fall outside the fixed grammar. Implementations typically call out to
// a language-model service; the scheduler core only depends on this contract.
type Oracle interface {
	ResolveVague(ctx context.Context, phrase string, ref time.Time) (time.Time, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, phrase string, ref time.Time) (time.Time, error)

func (f OracleFunc) ResolveVague(ctx context.Context, phrase string, ref time.Time) (time.Time, error) {
	return f(ctx, phrase, ref)
}
