package circuitbreaker

import "context"

// CallWithResult 是 CircuitBreaker.Call 的泛型封装，直接返回调用结果。
//
//	resp, err := circuitbreaker.CallWithResult(cb, ctx, func(ctx context.Context) (*llm.ChatResponse, error) {
//	    return provider.Completion(ctx, req)
//	})
func CallWithResult[T any](cb CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Call(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
