package sendtables

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
)

// SendPropertyFlags is the flag set of a send table property.
type SendPropertyFlags int

// HasFlagSet returns true if every bit of flag is set.
func (spf SendPropertyFlags) HasFlagSet(flag SendPropertyFlags) bool {
	return spf&flag == flag
}

// Send property flags.
const (
	propFlagUnsigned SendPropertyFlags = 1 << iota
	propFlagCoord
	propFlagNoScale
	propFlagRoundDown
	propFlagRoundUp
	propFlagNormal
	propFlagExclude
	propFlagXYZE
	propFlagInsideArray
	propFlagProxyAlwaysYes
	propFlagIsVectorElem
	propFlagCollapsible
	propFlagCoordMp
	propFlagCoordMpLowPrecision
	propFlagCoordMpIntegral
	propFlagCellCoord
	propFlagCellCoordLowPrecision
	propFlagCellCoordIntegral
	propFlagChangesOften
	propFlagVarInt
)

const specialFloatFlags = propFlagNoScale | propFlagCoord | propFlagCellCoord | propFlagNormal |
	propFlagCoordMp | propFlagCoordMpLowPrecision | propFlagCoordMpIntegral |
	propFlagCellCoordLowPrecision | propFlagCellCoordIntegral

// PropertyType is the wire type of a send table property.
type PropertyType int

// Property wire types.
const (
	PropTypeInt PropertyType = iota
	PropTypeFloat
	PropTypeVector
	PropTypeVectorXY
	PropTypeString
	PropTypeArray
	PropTypeDataTable
	PropTypeInt64
)

var propTypeNames = map[PropertyType]string{
	PropTypeInt:       "Int",
	PropTypeFloat:     "Float",
	PropTypeVector:    "Vector",
	PropTypeVectorXY:  "VectorXY",
	PropTypeString:    "String",
	PropTypeArray:     "Array",
	PropTypeDataTable: "DataTable",
	PropTypeInt64:     "Int64",
}

func (pt PropertyType) String() string {
	if name, ok := propTypeNames[pt]; ok {
		return name
	}
	return "Unknown"
}

const (
	coordFractionalBits             = 5
	coordDenominator                = 1 << coordFractionalBits
	coordResolution         float32 = 1.0 / coordDenominator
	coordIntegerBits                = 14
	coordIntegerBitsMp              = 11
	coordFractionalBitsLowPrecision = 3
	coordDenominatorLowPrecision    = 1 << coordFractionalBitsLowPrecision
	coordResolutionLowPrecision     = 1.0 / coordDenominatorLowPrecision

	normalFractionalBits         = 11
	normalDenominator            = (1 << normalFractionalBits) - 1
	normalResolution     float32 = 1.0 / normalDenominator

	dataTableMaxStringBits = 9
)

// PropertyValue holds the decoded value of a property.
// Only the field matching the property's type is set.
type PropertyValue struct {
	VectorVal r3.Vector
	IntVal    int
	Int64Val  int64
	ArrayVal  []PropertyValue
	StringVal string
	FloatVal  float32
}

type propertyDecoder struct{}

var propDecoder propertyDecoder

func (propertyDecoder) decodeProp(fProp *FlattenedPropEntry, r *bitread.BitReader) PropertyValue {
	switch fProp.prop.RawType {
	case PropTypeFloat:
		return PropertyValue{FloatVal: propDecoder.decodeFloat(fProp.prop, r)}

	case PropTypeInt:
		return PropertyValue{IntVal: propDecoder.decodeInt(fProp.prop, r)}

	case PropTypeInt64:
		return PropertyValue{Int64Val: propDecoder.decodeInt64(fProp.prop, r)}

	case PropTypeVectorXY:
		return PropertyValue{VectorVal: propDecoder.decodeVectorXY(fProp.prop, r)}

	case PropTypeVector:
		return PropertyValue{VectorVal: propDecoder.decodeVector(fProp.prop, r)}

	case PropTypeArray:
		return PropertyValue{ArrayVal: propDecoder.decodeArray(fProp, r)}

	case PropTypeString:
		return PropertyValue{StringVal: propDecoder.decodeString(r)}
	}

	panic("unknown prop type " + fProp.prop.RawType.String())
}

func (propertyDecoder) decodeInt(prop *SendTableProperty, r *bitread.BitReader) int {
	if prop.Flags.HasFlagSet(propFlagVarInt) {
		if prop.Flags.HasFlagSet(propFlagUnsigned) {
			return int(r.ReadVarInt32())
		}
		return int(r.ReadSignedVarInt32())
	}

	if prop.Flags.HasFlagSet(propFlagUnsigned) {
		return int(r.ReadInt(prop.NumberOfBits))
	}
	return r.ReadSignedInt(prop.NumberOfBits)
}

func (propertyDecoder) decodeInt64(prop *SendTableProperty, r *bitread.BitReader) int64 {
	if prop.Flags.HasFlagSet(propFlagVarInt) {
		if prop.Flags.HasFlagSet(propFlagUnsigned) {
			return int64(r.ReadVarInt64())
		}
		return r.ReadSignedVarInt64()
	}

	var (
		high, low uint
		isNeg     bool
	)
	if prop.Flags.HasFlagSet(propFlagUnsigned) {
		low = r.ReadInt(32)
		high = r.ReadInt(prop.NumberOfBits - 32)
	} else {
		isNeg = r.ReadBit()
		low = r.ReadInt(32)
		high = r.ReadInt(prop.NumberOfBits - 32 - 1)
	}

	res := int64(high)<<32 | int64(low)
	if isNeg {
		res = -res
	}
	return res
}

func (propertyDecoder) decodeFloat(prop *SendTableProperty, r *bitread.BitReader) float32 {
	if prop.Flags&specialFloatFlags != 0 {
		return propDecoder.decodeSpecialFloat(prop, r)
	}

	dwInterp := r.ReadInt(prop.NumberOfBits)
	return prop.LowValue + (prop.HighValue-prop.LowValue)*(float32(dwInterp)/float32((uint64(1)<<uint(prop.NumberOfBits))-1))
}

func (propertyDecoder) decodeSpecialFloat(prop *SendTableProperty, r *bitread.BitReader) float32 {
	switch {
	case prop.Flags.HasFlagSet(propFlagCoord):
		return propDecoder.readBitCoord(r)
	case prop.Flags.HasFlagSet(propFlagCoordMp):
		return propDecoder.readBitCoordMp(r, false, false)
	case prop.Flags.HasFlagSet(propFlagCoordMpLowPrecision):
		return propDecoder.readBitCoordMp(r, false, true)
	case prop.Flags.HasFlagSet(propFlagCoordMpIntegral):
		return propDecoder.readBitCoordMp(r, true, false)
	case prop.Flags.HasFlagSet(propFlagNoScale):
		return r.ReadFloat()
	case prop.Flags.HasFlagSet(propFlagNormal):
		return propDecoder.readBitNormal(r)
	case prop.Flags.HasFlagSet(propFlagCellCoord):
		return propDecoder.readBitCellCoord(r, prop.NumberOfBits, false, false)
	case prop.Flags.HasFlagSet(propFlagCellCoordLowPrecision):
		return propDecoder.readBitCellCoord(r, prop.NumberOfBits, true, false)
	case prop.Flags.HasFlagSet(propFlagCellCoordIntegral):
		return propDecoder.readBitCellCoord(r, prop.NumberOfBits, false, true)
	}

	panic("unexpected special float flag")
}

func (propertyDecoder) readBitCoord(r *bitread.BitReader) float32 {
	var (
		intVal, fractVal uint
		res              float32
		isNeg            bool
	)

	intVal = r.ReadInt(1)
	fractVal = r.ReadInt(1)

	if intVal|fractVal != 0 {
		isNeg = r.ReadBit()

		if intVal == 1 {
			intVal = r.ReadInt(coordIntegerBits) + 1
		}

		if fractVal == 1 {
			fractVal = r.ReadInt(coordFractionalBits)
		}

		res = float32(intVal) + float32(fractVal)*coordResolution
	}

	if isNeg {
		res = -res
	}

	return res
}

func (propertyDecoder) readBitCoordMp(r *bitread.BitReader, isIntegral bool, isLowPrecision bool) float32 {
	var (
		res   float32
		isNeg bool
	)

	inBounds := r.ReadBit()
	intBits := coordIntegerBits
	if inBounds {
		intBits = coordIntegerBitsMp
	}

	if isIntegral {
		if r.ReadBit() {
			isNeg = r.ReadBit()
			res = float32(r.ReadInt(intBits) + 1)
		}
	} else {
		readIntVal := r.ReadBit()
		isNeg = r.ReadBit()

		var intVal uint
		if readIntVal {
			intVal = r.ReadInt(intBits) + 1
		}

		if isLowPrecision {
			res = float32(intVal) + float32(r.ReadInt(coordFractionalBitsLowPrecision))*coordResolutionLowPrecision
		} else {
			res = float32(intVal) + float32(r.ReadInt(coordFractionalBits))*coordResolution
		}
	}

	if isNeg {
		res = -res
	}

	return res
}

func (propertyDecoder) readBitNormal(r *bitread.BitReader) float32 {
	isNeg := r.ReadBit()
	fractVal := r.ReadInt(normalFractionalBits)
	res := float32(fractVal) * normalResolution

	if isNeg {
		res = -res
	}

	return res
}

func (propertyDecoder) readBitCellCoord(r *bitread.BitReader, bits int, isLowPrecision bool, isIntegral bool) float32 {
	if isIntegral {
		return float32(r.ReadInt(bits))
	}

	intVal := r.ReadInt(bits)
	if isLowPrecision {
		return float32(intVal) + float32(r.ReadInt(coordFractionalBitsLowPrecision))*coordResolutionLowPrecision
	}

	return float32(intVal) + float32(r.ReadInt(coordFractionalBits))*coordResolution
}

func (propertyDecoder) decodeVector(prop *SendTableProperty, r *bitread.BitReader) r3.Vector {
	res := r3.Vector{
		X: float64(propDecoder.decodeFloat(prop, r)),
		Y: float64(propDecoder.decodeFloat(prop, r)),
	}

	if !prop.Flags.HasFlagSet(propFlagNormal) {
		res.Z = float64(propDecoder.decodeFloat(prop, r))
		return res
	}

	isNeg := r.ReadBit()
	absolute := res.X*res.X + res.Y*res.Y
	if absolute < 1 {
		res.Z = math.Sqrt(1 - absolute)
	}

	if isNeg {
		res.Z = -res.Z
	}

	return res
}

func (propertyDecoder) decodeVectorXY(prop *SendTableProperty, r *bitread.BitReader) r3.Vector {
	return r3.Vector{
		X: float64(propDecoder.decodeFloat(prop, r)),
		Y: float64(propDecoder.decodeFloat(prop, r)),
	}
}

func (propertyDecoder) decodeArray(fProp *FlattenedPropEntry, r *bitread.BitReader) []PropertyValue {
	numBits := bitread.BitsFor(fProp.prop.NumberOfElements)
	if numBits == 0 {
		numBits = 1
	}

	nElements := int(r.ReadInt(numBits))
	res := make([]PropertyValue, 0, nElements)

	elem := &FlattenedPropEntry{prop: fProp.arrayElementProp}
	for i := 0; i < nElements; i++ {
		res = append(res, propDecoder.decodeProp(elem, r))
	}

	return res
}

func (propertyDecoder) decodeString(r *bitread.BitReader) string {
	length := int(r.ReadInt(dataTableMaxStringBits))
	if length == 0 {
		return ""
	}

	return string(r.ReadBytes(length))
}
