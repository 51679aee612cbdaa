package store

// Entity is anything the cache can key.
type Entity interface {
	Key() string
}

// collection is an ordered, newest-first list keyed by Entity.Key.
type collection[T Entity] struct {
	items []T
}

func (c *collection[T]) indexOf(id string) int {
	for i, item := range c.items {
		if item.Key() == id {
			return i
		}
	}
	return -1
}

// upsert replaces in place when the key exists, else inserts at the head.
func (c *collection[T]) upsert(e T) {
	if i := c.indexOf(e.Key()); i >= 0 {
		c.items[i] = e
		return
	}
	items := make([]T, 0, len(c.items)+1)
	items = append(items, e)
	c.items = append(items, c.items...)
}

// remove reports whether the key was present.
func (c *collection[T]) remove(id string) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	items := make([]T, 0, len(c.items)-1)
	items = append(items, c.items[:i]...)
	c.items = append(items, c.items[i+1:]...)
	return true
}

func (c *collection[T]) set(items []T) {
	c.items = append(make([]T, 0, len(items)), items...)
}

func (c *collection[T]) snapshot() []T {
	return append(make([]T, 0, len(c.items)), c.items...)
}
