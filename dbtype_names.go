package llamadb

import "strconv"

// DbTypeFromName maps a CREATE TABLE type name to a DbType. hasArray
// and arraySize carry the bracket suffix: `byte` (no brackets),
// `byte[]` (hasArray, sizeSet false) and `byte[N]` (hasArray, sizeSet).
// ok is false for an unknown type name or a bracket suffix on a
// non-byte type.
func DbTypeFromName(name Identifier, hasArray bool, arraySize uint32, sizeSet bool) (DbType, bool) {
	if hasArray {
		if name != "byte" {
			return DbType{}, false
		}
		if sizeSet {
			return DbTypeByteFixedOf(arraySize), true
		}
		return DbTypeByteDynamic, true
	}

	switch name {
	case "byte":
		return DbTypeByteFixedOf(1), true
	case "f64", "double":
		return DbTypeF64, true
	case "string", "varchar":
		return DbTypeString, true
	case "int", "integer":
		return DbTypeInt(4, true), true
	}

	// iN / uN for N in {8, 16, ..., 64} bits.
	s := name.String()
	if len(s) < 2 || (s[0] != 'i' && s[0] != 'u') {
		return DbType{}, false
	}
	bits, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil || bits < 8 || bits > 64 || bits%8 != 0 {
		return DbType{}, false
	}
	return DbTypeInt(uint8(bits/8), s[0] == 'i'), true
}

// DefaultValue is the value an omitted INSERT column receives: zero for
// integers and f64, the empty string, an empty byte[], and N zero bytes
// for byte[N].
func (t DbType) DefaultValue() Value {
	switch t.Kind {
	case DbTypeKindNull:
		return NullValue
	case DbTypeKindByteDynamic:
		return BytesValue(nil)
	case DbTypeKindByteFixed:
		return BytesValue(make([]byte, t.FixedLen))
	case DbTypeKindInteger:
		if t.Signed {
			return SignedIntValue(0)
		}
		return UnsignedIntValue(0)
	case DbTypeKindF64:
		return FloatValue(0)
	default:
		return StringValue("")
	}
}
