package engine

import (
	"context"
	"time"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/nodes"
	"github.com/shaiso/Loom/internal/telemetry"
)

// runWithRetry выполняет узел с учётом retry-политики.
//
// Политика применяется снаружи всей цепочки обёрток: каждая попытка
// заново разрешает шаблоны параметров и заново проходит инструментацию.
// Nil-политика означает одну попытку без повторов.
func runWithRetry(ctx context.Context, exec Executable, ec *ExecContext, policy *domain.RetryPolicy) (*nodes.Result, error) {
	attempts := 1
	if policy != nil && policy.MaxAttempts > 1 {
		attempts = policy.MaxAttempts
	}

	var lastErr error
	delay := retryDelay(policy)

	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := exec.Exec(ctx, ec)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		telemetry.WithNodeID(telemetry.FromContext(ctx), exec.ID()).Warn("повтор узла после ошибки",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay = nextDelay(policy, delay)
	}
	return nil, lastErr
}

// retryDelay возвращает задержку перед первым повтором.
func retryDelay(policy *domain.RetryPolicy) time.Duration {
	if policy == nil || policy.InitialDelayMs <= 0 {
		return 0
	}
	return time.Duration(policy.InitialDelayMs) * time.Millisecond
}

// nextDelay вычисляет задержку перед следующим повтором.
// Для backoff "exponential" задержка удваивается до MaxDelayMs,
// для "fixed" (и любого другого значения) остаётся постоянной.
func nextDelay(policy *domain.RetryPolicy, current time.Duration) time.Duration {
	if policy == nil || policy.Backoff != domain.BackoffExponential {
		return current
	}
	next := current * 2
	if policy.MaxDelayMs > 0 {
		if limit := time.Duration(policy.MaxDelayMs) * time.Millisecond; next > limit {
			next = limit
		}
	}
	return next
}
