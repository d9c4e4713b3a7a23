package services

import (
	"math/big"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// equalOpts compares by contents: Equal methods are honoured, nil and empty
// collections match, and big integers compare by value.
var equalOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmp.Comparer(func(a, b *big.Int) bool {
		if a == nil || b == nil {
			return (a == nil || a.Sign() == 0) && (b == nil || b.Sign() == 0)
		}
		return a.Cmp(b) == 0
	}),
}

// structurallyEqual reports whether two transformed values have the same contents.
// Types cmp cannot inspect (unexported fields without an Equal method) fall back to reflect.DeepEqual.
func structurallyEqual(a, b interface{}) (equal bool) {
	defer func() {
		if r := recover(); r != nil {
			equal = reflect.DeepEqual(a, b)
		}
	}()
	return cmp.Equal(a, b, equalOpts)
}
