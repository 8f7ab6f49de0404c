package kv

import (
	"context"
	"fmt"
	"iter"

	"github.com/vmihailenco/msgpack/v5"
)

// GetMsgpack reads key and decodes it into a T.
func GetMsgpack[T any](ctx context.Context, s Store, key Key) (T, error) {
	var v T
	data, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return v, nil
}

// SetMsgpack encodes v with msgpack and stores it at key.
func SetMsgpack(ctx context.Context, s Store, key Key, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// MsgpackEntry encodes v with msgpack as an Entry for BatchSet.
func MsgpackEntry(key Key, v any) (Entry, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return Entry{Key: key, Value: data}, nil
}

// ListMsgpack decodes every value under prefix into a T.
func ListMsgpack[T any](ctx context.Context, s Store, prefix Key) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for e, err := range s.List(ctx, prefix) {
			var v T
			if err == nil {
				if uerr := msgpack.Unmarshal(e.Value, &v); uerr != nil {
					err = fmt.Errorf("kv: decode %s: %w", e.Key, uerr)
				}
			}
			if !yield(v, err) {
				return
			}
		}
	}
}
