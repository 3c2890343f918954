package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/llm/gateway"
	"github.com/BaSui01/crewflow/llm/ratelimit"
	"github.com/BaSui01/crewflow/llm/retry"
	"github.com/BaSui01/crewflow/types"
)

func userRequest(content string) *ChatRequest {
	return &ChatRequest{
		Model:    "anthropic/claude-3-5-sonnet-20241022",
		Messages: []Message{{Role: RoleUser, Content: content}},
		Metadata: map[string]string{"task": "design_task"},
	}
}

func newGateway(interval time.Duration, attempts int) *gateway.Gateway {
	policy := &retry.Policy{MaxAttempts: attempts, Timeout: time.Second, Multiplier: 1}
	return gateway.New(ratelimit.New(interval), retry.NewRetryer(policy, zap.NewNop()))
}

// =============================================================================
// 🧪 DryRunProvider
// =============================================================================

func TestDryRunProvider_Deterministic(t *testing.T) {
	p := NewDryRunProvider()

	a, err := p.Completion(context.Background(), userRequest("build a sales module"))
	require.NoError(t, err)
	b, err := p.Completion(context.Background(), userRequest("build a sales module"))
	require.NoError(t, err)
	c, err := p.Completion(context.Background(), userRequest("build an inventory module"))
	require.NoError(t, err)

	assert.Equal(t, a.Text(), b.Text())
	assert.NotEqual(t, a.Text(), c.Text())
	assert.Contains(t, a.Text(), "design_task")
	assert.Equal(t, "dryrun", a.Provider)
	assert.Equal(t, 3, p.Calls())
}

func TestDryRunProvider_InjectedFailures(t *testing.T) {
	boom := errors.New("503 service unavailable")
	p := NewDryRunProvider(WithDryRunFailures(boom, nil, boom))

	_, err := p.Completion(context.Background(), userRequest("x"))
	assert.ErrorIs(t, err, boom)
	_, err = p.Completion(context.Background(), userRequest("x"))
	assert.NoError(t, err)
	_, err = p.Completion(context.Background(), userRequest("x"))
	assert.ErrorIs(t, err, boom)
	_, err = p.Completion(context.Background(), userRequest("x"))
	assert.NoError(t, err)
}

func TestDryRunProvider_LatencyHonoursContext(t *testing.T) {
	p := NewDryRunProvider(WithDryRunLatency(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Completion(ctx, userRequest("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestChatResponse_TextEmpty(t *testing.T) {
	var resp *ChatResponse
	assert.Equal(t, "", resp.Text())
	assert.Equal(t, "", (&ChatResponse{}).Text())
}

// =============================================================================
// 🧪 ThrottledProvider
// =============================================================================

func TestThrottledProvider_RetriesTransientFailures(t *testing.T) {
	inner := NewDryRunProvider(WithDryRunFailures(errors.New("timeout"), errors.New("timeout")))
	p := NewThrottledProvider(inner, newGateway(0, 3), nil)

	resp, err := p.Completion(context.Background(), userRequest("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text())
	assert.Equal(t, 3, inner.Calls())
	assert.Equal(t, "dryrun", p.Name())
}

func TestThrottledProvider_ExhaustedReportsAttempts(t *testing.T) {
	fail := errors.New("upstream 500")
	inner := NewDryRunProvider(WithDryRunFailures(fail, fail, fail, fail))
	p := NewThrottledProvider(inner, newGateway(0, 3), nil)

	_, err := p.Completion(context.Background(), userRequest("hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrRetryExhausted)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 3, retry.AttemptsOf(err))
	assert.Equal(t, 3, inner.Calls())
}

// emptyProvider 返回 (nil, nil)
type emptyProvider struct{}

func (emptyProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return nil, nil
}

func (emptyProvider) Name() string { return "empty" }

func TestThrottledProvider_NilResponseIsAttemptFailure(t *testing.T) {
	p := NewThrottledProvider(emptyProvider{}, newGateway(0, 1), nil)

	var resp *ChatResponse
	var err error
	require.NotPanics(t, func() {
		resp, err = p.Completion(context.Background(), userRequest("hello"))
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, types.ErrAttemptFailure, types.GetErrorCode(err))
}

func TestThrottledProvider_RejectsEmptyRequest(t *testing.T) {
	inner := NewDryRunProvider()
	p := NewThrottledProvider(inner, newGateway(0, 3), nil)

	_, err := p.Completion(context.Background(), &ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidArgumentSentinel)
	assert.Zero(t, inner.Calls())
}

func TestThrottledProvider_SpacesCalls(t *testing.T) {
	interval := 40 * time.Millisecond
	inner := NewDryRunProvider()
	gw := newGateway(interval, 1)
	p := NewThrottledProvider(inner, gw, nil)

	_, err := p.Completion(context.Background(), userRequest("one"))
	require.NoError(t, err)
	first := gw.Limiter().Last()

	_, err = p.Completion(context.Background(), userRequest("two"))
	require.NoError(t, err)
	second := gw.Limiter().Last()

	assert.GreaterOrEqual(t, second.Sub(first), interval)
}
