package retry

import "context"

// ExecuteTyped is a type-safe generic wrapper around Retryer.Execute.
// It eliminates the need for type assertions on the return value.
//
// Usage:
//
//	val, err := retry.ExecuteTyped[int](r, ctx, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
func ExecuteTyped[T any](r Retryer, ctx context.Context, fn func(ctx context.Context) (T, error), opts ...ExecuteOption) (T, error) {
	result, err := r.Execute(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}
