package alarik

import "context"

type callerIdentity struct {
	AccessKey string
	UserID    string
}

type callerContextKey struct{}

func withCallerContext(ctx context.Context, c callerIdentity) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

func callerFromContext(ctx context.Context) callerIdentity {
	c, _ := ctx.Value(callerContextKey{}).(callerIdentity)
	return c
}
