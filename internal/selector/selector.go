// Package selector holds several independently configured classifiers and
// exposes exactly one of them as active.
package selector

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// ErrUnknownClassifier is returned for names no registered classifier has.
var ErrUnknownClassifier = errors.NewStd("unknown classifier")

// SwitchHook is called after the active classifier changed.
type SwitchHook func(from, to string)

// Selector tracks the active classifier. Switching only changes which
// loop ActiveResults forwards; it never starts or stops a loop.
type Selector struct {
	store conf.SettingsStore

	mu       sync.RWMutex
	names    []string
	byName   map[string]*classifier.Classifier
	active   string
	switched chan struct{} // closed and replaced on every switch
	hooks    []SwitchHook
}

// New registers classifiers in order and restores the active one from
// store. A stored name that is no longer registered falls back to
// defaultName, then to the first classifier.
func New(store conf.SettingsStore, defaultName string, classifiers ...*classifier.Classifier) (*Selector, error) {
	if len(classifiers) == 0 {
		return nil, errors.Newf("selector needs at least one classifier").
			Component("selector").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if store == nil {
		store = conf.NewMemoryStore()
	}

	s := &Selector{
		store:    store,
		byName:   make(map[string]*classifier.Classifier, len(classifiers)),
		switched: make(chan struct{}),
	}
	for _, c := range classifiers {
		if _, dup := s.byName[c.Name()]; dup {
			return nil, errors.Newf("duplicate classifier name %q", c.Name()).
				Component("selector").
				Category(errors.CategoryValidation).
				Build()
		}
		s.names = append(s.names, c.Name())
		s.byName[c.Name()] = c
	}

	stored := store.Get(conf.SelectedClassifierKey, "")
	switch {
	case s.byName[stored] != nil:
		s.active = stored
	case s.byName[defaultName] != nil:
		s.active = defaultName
	default:
		s.active = s.names[0]
	}
	if stored != "" && stored != s.active {
		GetLogger().Warn("stored classifier not registered, using fallback",
			logger.String("stored", stored),
			logger.String("active", s.active))
	}

	return s, nil
}

// Names returns the registered classifier names in registration order.
func (s *Selector) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.names)
}

// Get returns the named classifier.
func (s *Selector) Get(name string) (*classifier.Classifier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byName[name]
	return c, ok
}

// Classifiers returns every registered classifier in registration order.
func (s *Selector) Classifiers() []*classifier.Classifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*classifier.Classifier, len(s.names))
	for i, n := range s.names {
		out[i] = s.byName[n]
	}
	return out
}

// Active returns the active classifier and its name.
func (s *Selector) Active() (string, *classifier.Classifier) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.byName[s.active]
}

// OnSwitch registers a hook run after every effective switch.
func (s *Selector) OnSwitch(h SwitchHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// SwitchActive makes name the active classifier and persists the choice.
// Switching to the active classifier is a no-op. When persisting fails
// the active classifier is left unchanged.
func (s *Selector) SwitchActive(name string) error {
	s.mu.Lock()

	if name == s.active {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.byName[name]; !ok {
		s.mu.Unlock()
		return errors.New(fmt.Errorf("%w: %q", ErrUnknownClassifier, name)).
			Component("selector").
			Category(errors.CategoryNotFound).
			Build()
	}

	if err := s.store.Set(conf.SelectedClassifierKey, name); err != nil {
		s.mu.Unlock()
		return errors.New(fmt.Errorf("persist selected classifier: %w", err)).
			Component("selector").
			Category(errors.CategoryFileIO).
			Context("classifier", name).
			Build()
	}

	from := s.active
	s.active = name
	close(s.switched)
	s.switched = make(chan struct{})
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	GetLogger().Info("active classifier switched",
		logger.String("from", from),
		logger.String("to", name))
	for _, h := range hooks {
		h(from, name)
	}
	return nil
}

// ActiveResults streams the results of whichever classifier is active,
// re-subscribing on every switch. The stream covers every result emitted
// after the call returns and is closed when ctx ends. Results in flight at
// the moment of a switch may be lost.
func (s *Selector) ActiveResults(ctx context.Context) <-chan classifier.Result {
	out := make(chan classifier.Result)
	results, unsubscribe, switched := s.subscribeActive()

	go func() {
		defer close(out)
		for {
			done := forward(ctx, results, switched, out)
			unsubscribe()
			if done {
				return
			}
			results, unsubscribe, switched = s.subscribeActive()
		}
	}()

	return out
}

// subscribeActive subscribes to the active classifier and returns the
// channel closed on the next switch.
func (s *Selector) subscribeActive() (<-chan classifier.Result, func(), <-chan struct{}) {
	s.mu.RLock()
	c, switched := s.byName[s.active], s.switched
	s.mu.RUnlock()

	results, unsubscribe := c.Subscribe()
	return results, unsubscribe, switched
}

// forward copies results to out until the active classifier changes or
// ctx ends. It reports whether ctx ended.
func forward(ctx context.Context, results <-chan classifier.Result, switched <-chan struct{}, out chan<- classifier.Result) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case <-switched:
			return false
		case r, ok := <-results:
			if !ok {
				// classifier closed; wait for a switch away from it
				results = nil
				continue
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return true
			case <-switched:
				return false
			}
		}
	}
}

// GetLogger returns the selector package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("selector")
}
