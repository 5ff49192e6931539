package operand

// Type is the declared type tag of an operand.
type Type uint8

const (
	Invalid Type = iota
	Boolean
	Byte
	Short
	Int
	Long
	Float
	Double
	String
	BooleanArray
	ByteArray
	ShortArray
	IntArray
	LongArray
	FloatArray
	DoubleArray
	StringArray
	// Object operands pass an in-process Go value by reference with no byte
	// encoding.
	Object
)

var typeNames = [...]string{
	Invalid:      "invalid",
	Boolean:      "boolean",
	Byte:         "byte",
	Short:        "short",
	Int:          "int",
	Long:         "long",
	Float:        "float",
	Double:       "double",
	String:       "string",
	BooleanArray: "boolean[]",
	ByteArray:    "byte[]",
	ShortArray:   "short[]",
	IntArray:     "int[]",
	LongArray:    "long[]",
	FloatArray:   "float[]",
	DoubleArray:  "double[]",
	StringArray:  "string[]",
	Object:       "object",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "invalid"
}

// Size returns the fixed encoded size of a scalar type, or -1 for variable
// length types.
func (t Type) Size() int {
	switch t {
	case Boolean, Byte:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		return -1
	}
}

// IsArray reports whether t is an array type.
func (t Type) IsArray() bool {
	return t >= BooleanArray && t <= StringArray
}

// Elem returns the element type of an array type, or Invalid.
func (t Type) Elem() Type {
	if !t.IsArray() {
		return Invalid
	}
	return t - BooleanArray + Boolean
}

// ArrayOf returns the array type whose elements are t, or Invalid.
func ArrayOf(t Type) Type {
	if t < Boolean || t > String {
		return Invalid
	}
	return t - Boolean + BooleanArray
}

// ParseType maps a type name as rendered by String back to its Type.
func ParseType(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name && Type(i) != Invalid {
			return Type(i), true
		}
	}
	return Invalid, false
}
