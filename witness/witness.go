// Package witness binds input assignments to a constraint system and derives
// every internal wire by forward evaluation.
package witness

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/logger"

	"github.com/eon-protocol/zkpipe/constraint"
)

// Witness is the full wire assignment of one proving call.
type Witness struct {
	Values      fr.Vector
	NbPublic    int
	Unsatisfied []int
}

// Public returns the public input prefix.
func (w *Witness) Public() fr.Vector {
	return w.Values[:w.NbPublic]
}

func (w *Witness) Satisfied() bool {
	return len(w.Unsatisfied) == 0
}

type Option func(*options)

type options struct {
	strict bool
}

// Strict makes binding fail with *UnsatisfiableAssignment instead of recording
// the gates that do not hold.
func Strict() Option {
	return WithStrict(true)
}

func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// Bind evaluates a gnark assignment (the same struct type the system was
// compiled from) against cs.
func Bind(cs *constraint.System, assignment frontend.Circuit, opts ...Option) (*Witness, error) {
	full, err := frontend.NewWitness(assignment, constraint.FIELD)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAssignment, err)
	}
	vec, ok := full.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected witness vector %T", ErrInvalidAssignment, full.Vector())
	}
	return FromInputs(cs, vec, opts...)
}

// FromInputs evaluates cs given its public and secret inputs in wire order.
func FromInputs(cs *constraint.System, inputs fr.Vector, opts ...Option) (*Witness, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(inputs) != cs.NbInputs() {
		return nil, fmt.Errorf("%w: got %d inputs, want %d", ErrInvalidAssignment, len(inputs), cs.NbInputs())
	}
	values := make(fr.Vector, cs.NbWires())
	known := make([]bool, cs.NbWires())
	copy(values, inputs)
	for i := range inputs {
		known[i] = true
	}
	unsatisfied, err := solve(cs, values, known, o.strict)
	if err != nil {
		return nil, err
	}
	if len(unsatisfied) > 0 {
		log := logger.Logger()
		log.Warn().
			Int("nbUnsatisfied", len(unsatisfied)).
			Int("firstGate", unsatisfied[0]).
			Msg("assignment does not satisfy the constraint system")
	}
	return &Witness{Values: values, NbPublic: cs.NbPublic(), Unsatisfied: unsatisfied}, nil
}

// FromMap binds a named assignment. Array inputs declared as name_0, name_1, ...
// (or name[0], name[1], ...) take a slice or array value under name.
// Unknown names are rejected.
func FromMap(cs *constraint.System, assignment map[string]any, opts ...Option) (*Witness, error) {
	inputs := make(fr.Vector, cs.NbInputs())
	assigned := make([]bool, cs.NbInputs())

	keys := make([]string, 0, len(assignment))
	for k := range assignment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		value := assignment[name]
		if w, ok := cs.Lookup(name); ok {
			e, err := toElement(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAssignment, name, err)
			}
			inputs[w], assigned[w] = e, true
			continue
		}
		group := lookupGroup(cs, name)
		if len(group) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInput, name)
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("%w: %s: expected %d values, got %T", ErrInvalidAssignment, name, len(group), value)
		}
		if rv.Len() != len(group) {
			return nil, fmt.Errorf("%w: %s: expected %d values, got %d", ErrInvalidAssignment, name, len(group), rv.Len())
		}
		for i, w := range group {
			e, err := toElement(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %w", ErrInvalidAssignment, name, i, err)
			}
			inputs[w], assigned[w] = e, true
		}
	}

	var missing []string
	for i, ok := range assigned {
		if ok {
			continue
		}
		if i < cs.NbPublic() {
			missing = append(missing, cs.Public[i])
		} else {
			missing = append(missing, cs.Secret[i-cs.NbPublic()])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingInput, missing)
	}
	return FromInputs(cs, inputs, opts...)
}

func lookupGroup(cs *constraint.System, name string) []constraint.Wire {
	var group []constraint.Wire
	for _, format := range []func(int) string{
		func(i int) string { return name + "_" + strconv.Itoa(i) },
		func(i int) string { return name + "[" + strconv.Itoa(i) + "]" },
	} {
		for i := 0; ; i++ {
			w, ok := cs.Lookup(format(i))
			if !ok {
				break
			}
			group = append(group, w)
		}
		if len(group) > 0 {
			return group
		}
	}
	return nil
}

func toElement(v any) (fr.Element, error) {
	var e fr.Element
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.SetInt64(rv.Int())
		return e, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.SetUint64(rv.Uint())
		return e, nil
	case reflect.Invalid:
		return e, errors.New("nil value")
	}
	if _, err := e.SetInterface(v); err != nil {
		return e, err
	}
	return e, nil
}
