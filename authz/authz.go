// Package authz implements the two-phase authorization dispatcher: guards
// run first and may only deny or pass, then handlers run and may allow or
// deny, then an optional fallback chain has the final word.
package authz

import (
	"sync"

	"github.com/corehostfw/corehost/corehosterr"
	"github.com/corehostfw/corehost/handlerchain"
	"github.com/corehostfw/corehost/typehierarchy"
)

// Ability names a permission being checked. A handful are always known;
// anything else must be registered with RegisterAbility before use.
type Ability string

// Built-in abilities, per spec.md §3's closed set.
const (
	List   Ability = "List"
	Create Ability = "Create"
	Read   Ability = "Read"
	Update Ability = "Update"
	Delete Ability = "Delete"
)

var builtinAbilities = map[Ability]bool{
	List:   true,
	Create: true,
	Read:   true,
	Update: true,
	Delete: true,
}

// Query is the value dispatched through guard and handler chains.
type Query struct {
	Ability Ability
	Entity  any
	Field   string
	Type    string
}

// Typed is implemented by entities that know their own type tag. Entities
// that don't implement it must be passed to Can already resolved to a type
// tag string.
type Typed interface {
	TypeTag() string
}

// Dispatcher is the authorization dispatcher (C8).
type Dispatcher struct {
	hierarchy *typehierarchy.Registry

	mu       sync.Mutex
	guards   map[string]*handlerchain.Chain[Query]
	handlers map[string]*handlerchain.Chain[Query]
	fallback *handlerchain.Chain[Query]

	abilitiesMu     sync.RWMutex
	customAbilities map[Ability]bool
}

// New constructs a Dispatcher that walks type hierarchies via hierarchy.
func New(hierarchy *typehierarchy.Registry) *Dispatcher {
	return &Dispatcher{
		hierarchy:       hierarchy,
		guards:          make(map[string]*handlerchain.Chain[Query]),
		handlers:        make(map[string]*handlerchain.Chain[Query]),
		fallback:        handlerchain.New[Query]("authz:fallback"),
		customAbilities: make(map[Ability]bool),
	}
}

// RegisterAbility allows name to be used with Can even though it is not one
// of the built-in abilities.
func (d *Dispatcher) RegisterAbility(name Ability) {
	d.abilitiesMu.Lock()
	defer d.abilitiesMu.Unlock()
	d.customAbilities[name] = true
}

func (d *Dispatcher) knownAbility(name Ability) bool {
	if builtinAbilities[name] {
		return true
	}
	d.abilitiesMu.RLock()
	defer d.abilitiesMu.RUnlock()
	return d.customAbilities[name]
}

// Guard returns (creating on first use) the guard chain for a type tag.
func (d *Dispatcher) Guard(typeTag string) *handlerchain.Chain[Query] {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.guards[typeTag]
	if !ok {
		c = handlerchain.New[Query]("authz:guard:" + typeTag)
		d.guards[typeTag] = c
	}
	return c
}

// For returns (creating on first use) the handler chain for a type tag.
func (d *Dispatcher) For(typeTag string) *handlerchain.Chain[Query] {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.handlers[typeTag]
	if !ok {
		c = handlerchain.New[Query]("authz:handler:" + typeTag)
		d.handlers[typeTag] = c
	}
	return c
}

// Fallback returns the dispatcher's single fallback chain, triggered after
// guards and handlers both pass.
func (d *Dispatcher) Fallback() *handlerchain.Chain[Query] {
	return d.fallback
}

func typeTagOf(entity any) string {
	if t, ok := entity.(Typed); ok {
		return t.TypeTag()
	}
	if s, ok := entity.(string); ok {
		return s
	}
	return ""
}

// Can runs the two-phase authorization check for ability against entity
// (optionally scoped to field). It returns UnknownAbility if ability is
// neither built in nor registered, and LogicError if a guard ever returns
// Allow (guards may only deny or pass).
func (d *Dispatcher) Can(ability Ability, entity any, field string) (bool, error) {
	if !d.knownAbility(ability) {
		return false, corehosterr.UnknownAbilityf("ability %q is not registered", ability)
	}

	typeTag := typeTagOf(entity)
	query := Query{Ability: ability, Entity: entity, Field: field, Type: typeTag}

	for _, s := range d.hierarchy.Walk(typeTag) {
		d.mu.Lock()
		chain, ok := d.guards[s]
		d.mu.Unlock()
		if !ok {
			continue
		}
		switch chain.Trigger(query) {
		case handlerchain.Deny:
			return false, nil
		case handlerchain.Allow:
			return false, corehosterr.LogicErrorf("guard for %q returned Allow; guards may only deny or pass", s)
		}
	}

	for _, s := range d.hierarchy.Walk(typeTag) {
		d.mu.Lock()
		chain, ok := d.handlers[s]
		d.mu.Unlock()
		if !ok {
			continue
		}
		switch chain.Trigger(query) {
		case handlerchain.Allow:
			return true, nil
		case handlerchain.Deny:
			return false, nil
		}
	}

	switch d.fallback.Trigger(query) {
	case handlerchain.Allow:
		return true, nil
	case handlerchain.Deny:
		return false, nil
	default:
		return true, nil
	}
}
