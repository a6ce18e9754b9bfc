package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// PriceRelEpsilon is the relative tolerance for price equality.
	PriceRelEpsilon = 1e-4
	// PriceAbsEpsilon is the absolute tolerance for price equality.
	PriceAbsEpsilon = 5e-4
	// MinCostBasis is the smallest cost basis treated as meaningful.
	MinCostBasis = 0.0001
)

// PriceEqual compares two prices with both a relative and an absolute
// tolerance, so rounding by either marketplace does not count as a change.
func PriceEqual(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff <= PriceAbsEpsilon {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= scale*PriceRelEpsilon
}

// NormalizeBulk maps every bulk quantity below 2 to 1, the "no bulk" value.
func NormalizeBulk(bulk int) int {
	if bulk < 2 {
		return 1
	}
	return bulk
}

// HasCostBasis reports whether a cost basis carries information.
func HasCostBasis(cost float64) bool {
	return cost > MinCostBasis
}

// ToInt converts a decoded JSON value to int. Unparseable values are 0.
func ToInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(v))
		return i
	case []byte:
		i, _ := strconv.Atoi(strings.TrimSpace(string(v)))
		return i
	default:
		i, _ := strconv.Atoi(fmt.Sprintf("%v", v))
		return i
	}
}
