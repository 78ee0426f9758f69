package treasury

import (
	"sync"

	"trvault/crypto"
	nativecommon "trvault/native/common"
)

// AccessGate yields the pause and shutdown flags the engine consults before
// mutating state. The engine only ever reads from it.
type AccessGate interface {
	nativecommon.PauseView
	nativecommon.StrategyView
}

// StaticGate is a mutable in-memory AccessGate driven by administrative
// setters. It is the default gate when no external one is wired.
type StaticGate struct {
	mu        sync.RWMutex
	modules   map[string]bool
	paused    map[string]bool
	shutdowns map[string]bool
}

func NewStaticGate() *StaticGate {
	return &StaticGate{
		modules:   make(map[string]bool),
		paused:    make(map[string]bool),
		shutdowns: make(map[string]bool),
	}
}

func (g *StaticGate) SetModulePaused(module string, paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modules[module] = paused
}

func (g *StaticGate) SetStrategyPaused(strategy crypto.Address, paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused[string(strategy.Bytes())] = paused
}

func (g *StaticGate) SetShuttingDown(strategy crypto.Address, shutdown bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdowns[string(strategy.Bytes())] = shutdown
}

func (g *StaticGate) IsPaused(module string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.modules[module]
}

func (g *StaticGate) IsStrategyPaused(strategy crypto.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused[string(strategy.Bytes())]
}

func (g *StaticGate) IsShuttingDown(strategy crypto.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shutdowns[string(strategy.Bytes())]
}
