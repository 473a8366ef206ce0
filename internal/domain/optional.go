package domain

import "encoding/json"

// Optional описывает поле частичного обновления с тремя состояниями:
// поле не передано, передано как null, передано со значением.
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some возвращает Optional с установленным значением
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Null возвращает Optional, явно переданный как null
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// HasValue сообщает, что поле передано и не равно null
func (o Optional[T]) HasValue() bool {
	return o.Set && !o.Null
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.HasValue() {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
