// Package kv provides a key-value store with hierarchical keys, used to
// persist training history (epoch records and run summaries).
//
// Keys are string slices such as {"runs", id, "epochs", "0003"}, encoded
// with a separator byte (default ':'). Segments must not contain the
// separator. Values are raw bytes; the msgpack helpers in this package
// store typed records.
//
// Badger backs on-disk stores; Memory is used in tests.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys or segments containing the
	// separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Key is a hierarchical path represented as a slice of string segments.
type Key []string

// String returns the key joined with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Append returns a new key with segs added.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	return append(append(out, k...), segs...)
}

// Entry is a key-value pair returned by List and used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface for a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over entries strictly below prefix, in lexicographic
	// order of the encoded key. An empty prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet atomically stores multiple key-value pairs.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete atomically removes multiple keys.
	BatchDelete(ctx context.Context, keys []Key) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator is the default separator byte used to encode key segments.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator joins key segments. Default ':' if zero.
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

// encode validates k and joins it with the separator.
func (o *Options) encode(k Key) ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return o.encodePrefix(k)
}

// encodePrefix is encode for List prefixes, which may be empty.
func (o *Options) encodePrefix(k Key) ([]byte, error) {
	s := o.sep()
	n := 0
	for _, seg := range k {
		if strings.IndexByte(seg, s) >= 0 {
			return nil, fmt.Errorf("%w: segment %q contains separator %q", ErrInvalidKey, seg, s)
		}
		n += len(seg) + 1
	}
	buf := make([]byte, 0, n)
	for i, seg := range k {
		if i > 0 {
			buf = append(buf, s)
		}
		buf = append(buf, seg...)
	}
	return buf, nil
}

// listPrefix returns the byte prefix matched by List. A separator is
// appended so {"a", "b"} does not match "a:bc".
func (o *Options) listPrefix(k Key) ([]byte, error) {
	p, err := o.encodePrefix(k)
	if err != nil || len(p) == 0 {
		return nil, err
	}
	return append(p, o.sep()), nil
}

func (o *Options) decode(b []byte) Key {
	return Key(strings.Split(string(b), string(o.sep())))
}

// errSeq yields a single error.
func errSeq(err error) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		yield(Entry{}, err)
	}
}
