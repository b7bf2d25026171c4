package common

// Trilean is a boolean that can also be undefined. Witness fame starts
// Undefined and moves exactly once to True or False.
type Trilean int

const (
	// Undefined means the value has not been decided yet.
	Undefined Trilean = iota
	// True means the value is decided and true.
	True
	// False means the value is decided and false.
	False
)

var trileans = []string{"Undefined", "True", "False"}

// String returns the string representation of a Trilean.
func (t Trilean) String() string {
	return trileans[t]
}
