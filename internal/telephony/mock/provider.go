package mock

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/acme/group-call-bot/internal/config"
	"github.com/acme/group-call-bot/internal/domain"
	apperrors "github.com/acme/group-call-bot/pkg/errors"
)

// DefaultMaxCalls bounds how many simulated calls are tracked at once.
const DefaultMaxCalls = 1024

// Platform simulates a calling platform for local runs. Calls report
// "establishing" until they have been polled connectAfter times, then
// "connected". A negative connectAfter never connects. At most maxCalls calls
// are tracked; creating another forgets the oldest.
type Platform struct {
	connectAfter int
	maxCalls     int

	mu    sync.Mutex
	calls map[domain.CallHandle]*list.Element
	order *list.List
}

type simulatedCall struct {
	handle domain.CallHandle
	polls  int
}

// NewPlatform constructs a simulated platform.
func NewPlatform(cfg config.CallingConfig) *Platform {
	return &Platform{
		connectAfter: cfg.MockConnectAfter,
		maxCalls:     DefaultMaxCalls,
		calls:        make(map[domain.CallHandle]*list.Element),
		order:        list.New(),
	}
}

// CreateCall registers a new simulated call.
func (p *Platform) CreateCall(ctx context.Context, participants []string, callbackURL string) (domain.CallHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(participants) == 0 {
		return "", fmt.Errorf("%w: no targets", apperrors.ErrCreation)
	}

	handle := domain.CallHandle("mock-" + uuid.NewString())
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.maxCalls > 0 && p.order.Len() >= p.maxCalls {
		p.forget(p.order.Front())
	}
	p.calls[handle] = p.order.PushBack(&simulatedCall{handle: handle})
	return handle, nil
}

// CallState advances the simulated call by one poll.
func (p *Platform) CallState(ctx context.Context, handle domain.CallHandle) (domain.StateObservation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Unknown(), err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.calls[handle]
	if !ok {
		return domain.Unknown(), nil
	}
	call := el.Value.(*simulatedCall)
	call.polls++

	state := "establishing"
	if p.connectAfter >= 0 && call.polls >= p.connectAfter {
		state = domain.StateConnected
	}
	return domain.Observe(&state), nil
}

// StartPrompt accepts a prompt for a known call and forgets the call.
func (p *Platform) StartPrompt(ctx context.Context, handle domain.CallHandle, audioURL string) (domain.PromptOperation, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.calls[handle]
	if !ok {
		return "", fmt.Errorf("%w: unknown call %s", apperrors.ErrPrompt, handle)
	}
	p.forget(el)
	return domain.PromptOperation(uuid.NewString()), nil
}

// Tracked reports how many simulated calls are held.
func (p *Platform) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// forget drops a tracked call. Callers hold mu.
func (p *Platform) forget(el *list.Element) {
	call := p.order.Remove(el).(*simulatedCall)
	delete(p.calls, call.handle)
}
