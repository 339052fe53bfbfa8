package lifecycle

import (
	"sync"

	"github.com/corehostfw/corehost/corehosterr"
	"github.com/corehostfw/corehost/handlerchain"
	"github.com/sirupsen/logrus"
)

// Machine is a declarative phase state machine. Each phase has its own
// HandlerChain of onEnter hooks; entering a phase triggers that phase's
// chain. Hook return values are ignored.
type Machine struct {
	mu      sync.RWMutex
	table   Table
	current Phase

	hooksMu sync.Mutex
	hooks   map[Phase]*handlerchain.Chain[Phase]

	log *logrus.Entry
}

// New constructs a Machine with the given transition table, starting in
// initial.
func New(table Table, initial Phase, log *logrus.Entry) *Machine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Machine{
		table:   table,
		current: initial,
		hooks:   make(map[Phase]*handlerchain.Chain[Phase]),
		log:     log.WithField("component", "lifecycle"),
	}
}

// NewDefault builds the framework's lifecycle machine, starting in
// Initializing.
func NewDefault(log *logrus.Entry) *Machine {
	return New(DefaultTable(), Initializing, log)
}

// CurrentState returns the phase the machine currently occupies.
func (m *Machine) CurrentState() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// chainFor returns (creating if necessary) the hook chain for a phase.
func (m *Machine) chainFor(phase Phase) *handlerchain.Chain[Phase] {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	c, ok := m.hooks[phase]
	if !ok {
		c = handlerchain.New[Phase]("phase:" + string(phase))
		m.hooks[phase] = c
	}
	return c
}

// OnEnter subscribes fn to run whenever the machine transitions into phase.
// fn's return value is ignored; it exists purely as a hook.
func (m *Machine) OnEnter(phase Phase, fn func(Phase) handlerchain.Result) {
	m.chainFor(phase).Listen(func(p Phase) handlerchain.Result {
		fn(p)
		return handlerchain.Pass
	})
}

// Trigger attempts to move the machine from its current phase to "to". It
// fails with InvalidTransition unless the transition table allows it from
// the current phase. On success the phase is updated atomically and the
// destination phase's hook chain is dispatched.
func (m *Machine) Trigger(to Phase) error {
	m.mu.Lock()
	from := m.current
	if !m.table.allows(from, to) {
		m.mu.Unlock()
		return corehosterr.InvalidTransitionf("invalid lifecycle transition from %q to %q", from, to)
	}
	m.current = to
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("lifecycle transition")
	m.chainFor(to).Trigger(to)
	return nil
}
