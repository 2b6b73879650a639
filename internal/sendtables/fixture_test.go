package sendtables

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
	"github.com/dualitycsgo1/csgodemo/internal/bitwrite"
	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
)

type tableDef struct {
	name  string
	props []netmsg.SendProp
}

type classDef struct {
	name   string
	dtName string
}

func encodeSendProp(p netmsg.SendProp) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Type))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, p.VarName)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Flags))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Priority))
	if p.DtName != "" {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, p.DtName)
	}
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.NumElements))
	b = protowire.AppendTag(b, 7, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.LowValue))
	b = protowire.AppendTag(b, 8, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.HighValue))
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.NumBits))
	return b
}

func encodeSendTable(t tableDef, isEnd bool) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(isEnd))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, t.name)
	for _, p := range t.props {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSendProp(p))
	}
	return b
}

func writeDataTables(w *bitwrite.Writer, tables []tableDef, classes []classDef) {
	writeTable := func(body []byte) {
		w.WriteVarInt32(netmsg.SvcSendTable)
		w.WriteVarInt32(uint32(len(body)))
		w.WriteBytes(body)
	}

	for _, t := range tables {
		writeTable(encodeSendTable(t, false))
	}
	writeTable(encodeSendTable(tableDef{}, true))

	w.WriteInt(uint64(len(classes)), 16)
	for i, c := range classes {
		w.WriteInt(uint64(i), 16)
		w.WriteString(c.name)
		w.WriteString(c.dtName)
	}
}

const (
	testPrioLow    = 1
	testPrioNormal = 128
)

// testTables declares a child class with a collapsible base class, an excluded
// base prop, a nested table, an array and a high priority float.
var testTables = []tableDef{
	{
		name: "DT_Base",
		props: []netmsg.SendProp{
			{Type: int32(PropTypeInt), VarName: "m_iHealth", Flags: int32(propFlagUnsigned), NumBits: 8, Priority: testPrioNormal},
			{Type: int32(PropTypeInt), VarName: "m_excluded", Flags: int32(propFlagUnsigned), NumBits: 4, Priority: testPrioNormal},
		},
	},
	{
		name: "DT_Local",
		props: []netmsg.SendProp{
			{Type: int32(PropTypeInt), VarName: "m_bDucking", Flags: int32(propFlagUnsigned), NumBits: 1, Priority: testPrioNormal},
		},
	},
	{
		name: "DT_Child",
		props: []netmsg.SendProp{
			{Type: int32(PropTypeDataTable), VarName: "baseclass", DtName: "DT_Base", Flags: int32(propFlagCollapsible), Priority: testPrioNormal},
			{Type: int32(PropTypeInt), VarName: "m_excluded", DtName: "DT_Base", Flags: int32(propFlagExclude), Priority: testPrioNormal},
			{Type: int32(PropTypeDataTable), VarName: "m_Local", DtName: "DT_Local", Priority: testPrioNormal},
			{Type: int32(PropTypeInt), VarName: "m_arr_element", Flags: int32(propFlagUnsigned | propFlagInsideArray), NumBits: 4, Priority: testPrioNormal},
			{Type: int32(PropTypeArray), VarName: "m_arr", NumElements: 4, Priority: testPrioNormal},
			{Type: int32(PropTypeFloat), VarName: "m_flSpeed", Flags: int32(propFlagNoScale), Priority: testPrioLow},
		},
	},
}

var testClasses = []classDef{
	{name: "CBase", dtName: "DT_Base"},
	{name: "CChild", dtName: "DT_Child"},
}

// Flattened order of CChild.
const (
	idxSpeed = iota
	idxHealth
	idxArr
	idxDucking
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()

	var w bitwrite.Writer
	writeDataTables(&w, testTables, testClasses)

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	p := NewParser(logger)

	r := bitread.NewBytesReader(w.Bytes())
	defer r.Pool()

	require.NoError(t, p.ParsePacket(r))

	return p
}

// writeChildValues writes values for the given CChild indices.
func writeChildValues(w *bitwrite.Writer, indices []int, speed float32, health int, arr []int, ducking bool) {
	for _, idx := range indices {
		switch idx {
		case idxSpeed:
			w.WriteFloat(speed)
		case idxHealth:
			w.WriteInt(uint64(health), 8)
		case idxArr:
			w.WriteInt(uint64(len(arr)), 3)
			for _, v := range arr {
				w.WriteInt(uint64(v), 4)
			}
		case idxDucking:
			w.WriteBit(ducking)
		}
	}
}
