package ops

import "strings"

// Tolerance defines acceptable numeric drift versus reference outputs. A
// value g matches w when |g-w| <= Abs + Rel*|w|.
type Tolerance struct {
	Abs float64
	Rel float64
}

// DefaultTolerance applies to operators without an entry in
// OperatorTolerances.
var DefaultTolerance = Tolerance{Abs: 1e-7, Rel: 1e-3}

// OperatorTolerances loosens the default for operators whose reference
// outputs come from float32 accumulation or transcendental functions.
var OperatorTolerances = map[string]Tolerance{
	"gemm":               {Abs: 1e-5, Rel: 1e-3},
	"matmul":             {Abs: 1e-5, Rel: 1e-3},
	"einsum":             {Abs: 1e-5, Rel: 1e-3},
	"softmax":            {Abs: 1e-6, Rel: 1e-3},
	"layernormalization": {Abs: 1e-5, Rel: 1e-3},
	"conv":               {Abs: 1e-5, Rel: 1e-3},
	"globalaveragepool":  {Abs: 1e-6, Rel: 1e-3},
	"reducemean":         {Abs: 1e-6, Rel: 1e-3},
	"reducesum":          {Abs: 1e-6, Rel: 1e-3},
	"reduceprod":         {Abs: 1e-6, Rel: 1e-3},
}

// Nondeterministic lists operators whose outputs depend on a random source;
// conformance compares only their structure and value domain.
var Nondeterministic = map[string]bool{
	"bernoulli": true,
}

// OperatorTolerance returns the tolerance for an operator name, falling back
// to def when none is configured.
func OperatorTolerance(name string, def Tolerance) Tolerance {
	if t, ok := OperatorTolerances[strings.ToLower(name)]; ok {
		return t
	}

	return def
}

// IsNondeterministic reports whether name draws from a random source.
func IsNondeterministic(name string) bool {
	return Nondeterministic[strings.ToLower(name)]
}
