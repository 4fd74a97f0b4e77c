package classifier

import (
	"fmt"
	"maps"

	"github.com/pagd-project/pagd-go/internal/errors"
)

// ErrUnknownCategory is returned when including or excluding a name the
// scorer does not emit.
var ErrUnknownCategory = errors.NewStd("unknown category")

// Category is one label the scorer can emit and whether results for it
// are reported.
type Category struct {
	Title    string `json:"title"`
	Included bool   `json:"isIncluded"`
}

func (c *Classifier) inclusion() map[string]bool {
	return *c.included.Load()
}

func (c *Classifier) updateInclusion(mutate func(next map[string]bool)) {
	c.catMu.Lock()
	defer c.catMu.Unlock()

	next := maps.Clone(c.inclusion())
	mutate(next)
	c.included.Store(&next)
}

func (c *Classifier) knows(title string) bool {
	_, ok := c.inclusion()[title]
	return ok
}

func (c *Classifier) unknownCategory(title string) error {
	return errors.New(fmt.Errorf("%w: %q", ErrUnknownCategory, title)).
		Component("classifier").
		Category(errors.CategoryNotFound).
		Context("classifier", c.name).
		Build()
}

// IncludeCategory reports results for title again.
func (c *Classifier) IncludeCategory(title string) error {
	if !c.knows(title) {
		return c.unknownCategory(title)
	}
	c.updateInclusion(func(next map[string]bool) { next[title] = true })
	c.log.Debug("category included", loggerCategory(title))
	return nil
}

// ExcludeCategory stops reporting results for title.
func (c *Classifier) ExcludeCategory(title string) error {
	if !c.knows(title) {
		return c.unknownCategory(title)
	}
	c.updateInclusion(func(next map[string]bool) { next[title] = false })
	c.log.Debug("category excluded", loggerCategory(title))
	return nil
}

// IncludeAll includes every category the scorer knows.
func (c *Classifier) IncludeAll() {
	c.updateInclusion(func(next map[string]bool) {
		for k := range next {
			next[k] = true
		}
	})
	c.log.Debug("all categories included")
}

// ExcludeAll excludes every category; nothing is emitted until one is
// included again.
func (c *Classifier) ExcludeAll() {
	c.updateInclusion(func(next map[string]bool) {
		for k := range next {
			next[k] = false
		}
	})
	c.log.Debug("all categories excluded")
}

// Categories returns a snapshot of every category in scorer order.
func (c *Classifier) Categories() []Category {
	inclusion := c.inclusion()
	out := make([]Category, len(c.titles))
	for i, t := range c.titles {
		out[i] = Category{Title: t, Included: inclusion[t]}
	}
	return out
}

// AllCategoriesIncluded reports whether every category is included.
func (c *Classifier) AllCategoriesIncluded() bool {
	for _, included := range c.inclusion() {
		if !included {
			return false
		}
	}
	return true
}
