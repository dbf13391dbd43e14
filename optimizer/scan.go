// ABOUTME: Parameter scan walking the Cartesian product of axis specs
// ABOUTME: Positional odometer over grid or random per-axis sequences

package optimizer

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"geneva/config"
)

// scanAxis is one typed scan specification: a target coordinate plus the
// sequence of values to visit on that axis.
type scanAxis struct {
	kind   byte // 'd', 'i', 'b' or 'r'
	target int  // index into the matching parameter vector

	floats []float64
	ints   []int32
	bools  []bool
}

// length returns the number of values on the axis.
func (a scanAxis) length() int {
	switch a.kind {
	case 'd', 'r':
		return len(a.floats)
	case 'i':
		return len(a.ints)
	case 'b':
		return len(a.bools)
	default:
		return 0
	}
}

// parseScanSpec parses a parameterOptions string such as
//
//	d(0,-10,10,100), i(1,0,100), b(2), r(3,-1,1,50)
//
// into axis sequences. Grid axes (d, i) space their values evenly; an r()
// axis draws count uniform float values instead of a grid. The random
// flag (scanRandomly) additionally switches the grid axes to uniform
// draws, turning their step count into a draw count.
func parseScanSpec(spec string, random bool, rng *rand.Rand) ([]scanAxis, error) {
	var axes []scanAxis

	for _, tok := range strings.Split(spec, ")") {
		tok = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tok), ","))
		if tok == "" {
			continue
		}

		kind, argstr, ok := strings.Cut(tok, "(")
		kind = strings.TrimSpace(kind)

		if !ok || len(kind) != 1 {
			return nil, fmt.Errorf("%w: malformed scan token %q", config.ErrConfigInvalid, tok)
		}

		args := strings.Split(argstr, ",")
		for i := range args {
			args[i] = strings.TrimSpace(args[i])
		}

		axis, err := parseScanAxis(kind[0], args, random, rng)
		if err != nil {
			return nil, err
		}

		axes = append(axes, axis)
	}

	if len(axes) == 0 {
		return nil, fmt.Errorf("%w: empty parameterOptions", config.ErrConfigInvalid)
	}

	return axes, nil
}

// parseScanAxis builds one axis from its argument list.
func parseScanAxis(kind byte, args []string, random bool, rng *rand.Rand) (scanAxis, error) {
	switch kind {
	case 'd':
		if len(args) != 4 {
			return scanAxis{}, fmt.Errorf("%w: d() needs (index, lo, hi, steps), got %d args", config.ErrConfigInvalid, len(args))
		}

		target, err := strconv.Atoi(args[0])
		if err != nil {
			return scanAxis{}, fmt.Errorf("%w: bad axis index %q", config.ErrConfigInvalid, args[0])
		}

		lo, err1 := strconv.ParseFloat(args[1], 64)
		hi, err2 := strconv.ParseFloat(args[2], 64)
		steps, err3 := strconv.Atoi(args[3])

		if err1 != nil || err2 != nil || err3 != nil || steps < 1 {
			return scanAxis{}, fmt.Errorf("%w: bad d() arguments %v", config.ErrConfigInvalid, args)
		}

		if lo >= hi {
			return scanAxis{}, fmt.Errorf("%w: d() range [%v, %v] is empty", config.ErrConfigInvalid, lo, hi)
		}

		values := make([]float64, steps)

		for j := range steps {
			if random {
				values[j] = lo + rng.Float64()*(hi-lo)
			} else if steps == 1 {
				values[j] = lo
			} else {
				values[j] = lo + float64(j)*(hi-lo)/float64(steps-1)
			}
		}

		return scanAxis{kind: 'd', target: target, floats: values}, nil

	case 'i':
		if len(args) != 3 && len(args) != 4 {
			return scanAxis{}, fmt.Errorf("%w: i() needs (index, lo, hi[, steps]), got %d args", config.ErrConfigInvalid, len(args))
		}

		target, err := strconv.Atoi(args[0])
		if err != nil {
			return scanAxis{}, fmt.Errorf("%w: bad axis index %q", config.ErrConfigInvalid, args[0])
		}

		lo, err1 := strconv.ParseInt(args[1], 10, 32)
		hi, err2 := strconv.ParseInt(args[2], 10, 32)

		if err1 != nil || err2 != nil || lo > hi {
			return scanAxis{}, fmt.Errorf("%w: bad i() arguments %v", config.ErrConfigInvalid, args)
		}

		steps := int(hi - lo + 1)
		if len(args) == 4 {
			s, err := strconv.Atoi(args[3])
			if err != nil || s < 1 {
				return scanAxis{}, fmt.Errorf("%w: bad i() step count %q", config.ErrConfigInvalid, args[3])
			}

			steps = s
		}

		values := make([]int32, steps)

		for j := range steps {
			if random {
				values[j] = int32(lo) + rng.Int32N(int32(hi-lo+1))
			} else if steps == 1 {
				values[j] = int32(lo)
			} else {
				values[j] = int32(lo + int64(j)*(hi-lo)/int64(steps-1))
			}
		}

		return scanAxis{kind: 'i', target: target, ints: values}, nil

	case 'b':
		if len(args) != 1 {
			return scanAxis{}, fmt.Errorf("%w: b() needs (index), got %d args", config.ErrConfigInvalid, len(args))
		}

		target, err := strconv.Atoi(args[0])
		if err != nil {
			return scanAxis{}, fmt.Errorf("%w: bad axis index %q", config.ErrConfigInvalid, args[0])
		}

		return scanAxis{kind: 'b', target: target, bools: []bool{false, true}}, nil

	case 'r':
		if len(args) != 4 {
			return scanAxis{}, fmt.Errorf("%w: r() needs (index, lo, hi, count), got %d args", config.ErrConfigInvalid, len(args))
		}

		target, err := strconv.Atoi(args[0])
		if err != nil {
			return scanAxis{}, fmt.Errorf("%w: bad axis index %q", config.ErrConfigInvalid, args[0])
		}

		lo, err1 := strconv.ParseFloat(args[1], 64)
		hi, err2 := strconv.ParseFloat(args[2], 64)
		count, err3 := strconv.Atoi(args[3])

		if err1 != nil || err2 != nil || err3 != nil || count < 1 {
			return scanAxis{}, fmt.Errorf("%w: bad r() arguments %v", config.ErrConfigInvalid, args)
		}

		if lo >= hi {
			return scanAxis{}, fmt.Errorf("%w: r() range [%v, %v] is empty", config.ErrConfigInvalid, lo, hi)
		}

		values := make([]float64, count)
		for j := range count {
			values[j] = lo + rng.Float64()*(hi-lo)
		}

		return scanAxis{kind: 'r', target: target, floats: values}, nil

	default:
		return scanAxis{}, fmt.Errorf("%w: unknown scan axis type %q", config.ErrConfigInvalid, string(kind))
	}
}

// odometer walks the Cartesian product of the axes positionally: axis 0
// advances first and carries into axis 1 on wrap, and so on. The product
// is finite and not restartable within a run.
type odometer struct {
	axes []scanAxis
	pos  []int
	slot int
}

// newOdometer starts at the origin of the grid.
func newOdometer(axes []scanAxis) *odometer {
	return &odometer{axes: axes, pos: make([]int, len(axes))}
}

// size returns the total number of grid points.
func (o *odometer) size() int {
	total := 1
	for _, a := range o.axes {
		total *= a.length()
	}

	return total
}

// next advances to the following grid point. wrapped is true when the
// odometer rolled over the last point, signalling exhaustion.
func (o *odometer) next() (wrapped bool) {
	o.slot++

	for i := range o.pos {
		o.pos[i]++
		if o.pos[i] < o.axes[i].length() {
			return false
		}

		o.pos[i] = 0
	}

	return true
}
