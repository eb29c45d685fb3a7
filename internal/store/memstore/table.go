package memstore

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/store"
)

// table keeps documents as encoded BSON so every read hands out a private
// copy, the same way a round trip to the database would.
type table[T any] struct {
	s    *Store
	rows map[primitive.ObjectID][]byte
	id   func(*T) *primitive.ObjectID

	// conflicts emulates unique indexes: it reports whether two distinct
	// documents collide on a unique key.
	conflicts func(a, b *T) bool
}

func newTable[T any](s *Store, id func(*T) *primitive.ObjectID) *table[T] {
	return &table[T]{s: s, rows: make(map[primitive.ObjectID][]byte), id: id}
}

func (t *table[T]) decode(raw []byte) (*T, error) {
	v := new(T)
	if err := bson.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return v, nil
}

// record journals the current state of id when ctx carries a transaction.
// It must be called with the write lock held.
func (t *table[T]) record(ctx context.Context, id primitive.ObjectID) {
	j, ok := ctx.Value(txKey{}).(*journal)
	if !ok {
		return
	}
	prev, had := t.rows[id]
	j.undo = append(j.undo, func() {
		if had {
			t.rows[id] = prev
		} else {
			delete(t.rows, id)
		}
	})
}

func (t *table[T]) insert(ctx context.Context, v *T) error {
	id := t.id(v)
	if id.IsZero() {
		*id = primitive.NewObjectID()
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.rows[*id]; ok {
		return store.ErrDuplicate
	}
	if err := t.checkUnique(*id, v); err != nil {
		return err
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	t.record(ctx, *id)
	t.rows[*id] = raw
	return nil
}

// checkUnique must be called with the write lock held.
func (t *table[T]) checkUnique(id primitive.ObjectID, v *T) error {
	if t.conflicts == nil {
		return nil
	}
	for other, raw := range t.rows {
		if other == id {
			continue
		}
		existing, err := t.decode(raw)
		if err != nil {
			return err
		}
		if t.conflicts(existing, v) {
			return store.ErrDuplicate
		}
	}
	return nil
}

func (t *table[T]) get(id primitive.ObjectID) (*T, error) {
	t.s.mu.RLock()
	raw, ok := t.rows[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.decode(raw)
}

func (t *table[T]) put(ctx context.Context, v *T) error {
	id := *t.id(v)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return store.ErrNotFound
	}
	if err := t.checkUnique(id, v); err != nil {
		return err
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	t.record(ctx, id)
	t.rows[id] = raw
	return nil
}

// update applies change to the stored document under the write lock and saves
// the result. It returns store.ErrNotClaimed without writing when change
// reports false.
func (t *table[T]) update(ctx context.Context, id primitive.ObjectID, change func(*T) bool) (*T, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	raw, ok := t.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	v, err := t.decode(raw)
	if err != nil {
		return nil, err
	}
	if !change(v) {
		return nil, store.ErrNotClaimed
	}
	next, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	t.record(ctx, id)
	t.rows[id] = next
	return v, nil
}

func (t *table[T]) remove(ctx context.Context, id primitive.ObjectID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return store.ErrNotFound
	}
	t.record(ctx, id)
	delete(t.rows, id)
	return nil
}

// find returns every document matching keep, ordered by less when given.
func (t *table[T]) find(keep func(*T) bool, less func(a, b *T) bool) ([]T, error) {
	t.s.mu.RLock()
	raws := make([][]byte, 0, len(t.rows))
	for _, raw := range t.rows {
		raws = append(raws, raw)
	}
	t.s.mu.RUnlock()

	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v, err := t.decode(raw)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	res := make([]T, len(out))
	for i, v := range out {
		res[i] = *v
	}
	return res, nil
}

func (t *table[T]) first(keep func(*T) bool) (*T, error) {
	matches, err := t.find(keep, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, store.ErrNotFound
	}
	return &matches[0], nil
}
