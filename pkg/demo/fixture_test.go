package demo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
	"github.com/dualitycsgo1/csgodemo/internal/bitwrite"
	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
	"github.com/dualitycsgo1/csgodemo/internal/sendtables"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
)

func testHeader() common.DemoHeader {
	return common.DemoHeader{
		Filestamp:       common.DemoFilestamp,
		Protocol:        common.DemoProtocol,
		NetworkProtocol: 13780,
		ServerName:      "Valve CS:GO EU West Server",
		ClientName:      "GOTV Demo",
		MapName:         "de_dust2",
		GameDirectory:   common.GameDirectory,
		PlaybackTime:    2,
		PlaybackTicks:   256,
		PlaybackFrames:  128,
	}
}

// demoBuilder writes a demo stream frame by frame.
type demoBuilder struct {
	w    bitwrite.Writer
	tick int
}

func newDemoBuilder(h common.DemoHeader) *demoBuilder {
	b := new(demoBuilder)

	b.w.WriteFixedString(h.Filestamp, 8)
	b.w.WriteInt32(int32(h.Protocol))
	b.w.WriteInt32(int32(h.NetworkProtocol))
	b.w.WriteFixedString(h.ServerName, maxOsPath)
	b.w.WriteFixedString(h.ClientName, maxOsPath)
	b.w.WriteFixedString(h.MapName, maxOsPath)
	b.w.WriteFixedString(h.GameDirectory, maxOsPath)
	b.w.WriteFloat(h.PlaybackTime)
	b.w.WriteInt32(int32(h.PlaybackTicks))
	b.w.WriteInt32(int32(h.PlaybackFrames))
	b.w.WriteInt32(int32(h.SignonLength))

	return b
}

func (b *demoBuilder) frame(cmd demoCommand) *demoBuilder {
	b.w.WriteInt(uint64(cmd), 8)
	b.w.WriteInt32(int32(b.tick))
	b.w.WriteInt(0, 8)
	b.tick++

	return b
}

func (b *demoBuilder) chunk(body []byte) {
	b.w.WriteInt32(int32(len(body)))
	b.w.WriteBytes(body)
}

func (b *demoBuilder) syncTick() *demoBuilder {
	return b.frame(dcSynctick)
}

func (b *demoBuilder) stop() *demoBuilder {
	return b.frame(dcStop)
}

type netMessage struct {
	cmd  int
	body []byte
}

func (b *demoBuilder) packet(msgs ...netMessage) *demoBuilder {
	b.frame(dcPacket)
	b.w.WriteBytes(make([]byte, commandInfoBytes+sequenceNumberBytes))

	var body bitwrite.Writer
	for _, m := range msgs {
		body.WriteVarInt32(uint32(m.cmd))
		body.WriteVarInt32(uint32(len(m.body)))
		body.WriteBytes(m.body)
	}

	b.chunk(body.Bytes())

	return b
}

func (b *demoBuilder) dataTables(tables []tableDef, classes []classDef) *demoBuilder {
	b.frame(dcDataTables)

	var body bitwrite.Writer
	writeDataTables(&body, tables, classes)
	b.chunk(body.Bytes())

	return b
}

type stringTableEntry struct {
	key      string
	userData []byte
}

type stringTableDump struct {
	name    string
	entries []stringTableEntry
}

func (b *demoBuilder) stringTables(tables ...stringTableDump) *demoBuilder {
	b.frame(dcStringTables)

	var body bitwrite.Writer
	body.WriteInt(uint64(len(tables)), 8)

	for _, t := range tables {
		body.WriteString(t.name)
		body.WriteInt(uint64(len(t.entries)), 16)

		for _, e := range t.entries {
			body.WriteString(e.key)
			body.WriteBit(e.userData != nil)

			if e.userData != nil {
				body.WriteInt(uint64(len(e.userData)), 16)
				body.WriteBytes(e.userData)
			}
		}

		// no client side entries
		body.WriteBit(false)
	}

	b.chunk(body.Bytes())

	return b
}

func (b *demoBuilder) bytes() []byte {
	return b.w.Bytes()
}

func (b *demoBuilder) reader() io.Reader {
	return bytes.NewReader(b.w.Bytes())
}

func newTestParser(t *testing.T, demo io.Reader, config ParserConfig) *Parser {
	t.Helper()

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	config.Logger = logger

	p := NewParserWithConfig(demo, config)
	t.Cleanup(func() {
		_ = p.Close()
	})

	return p
}

// protobuf bodies

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func serverInfoMsg(tickInterval float32, mapName string) netMessage {
	var b []byte
	b = appendVarint(b, 1, 13780)
	b = appendFloat(b, 14, tickInterval)
	b = appendBytes(b, 15, []byte("csgo"))
	b = appendBytes(b, 16, []byte(mapName))

	return netMessage{cmd: netmsg.SvcServerInfo, body: b}
}

func createStringTableMsg(name string, maxEntries int, flags int32, entries []stringTableEntry) netMessage {
	data := encodeStringTableData(entries)

	if flags&stringTableCompressedFlag != 0 {
		compressed := snappy.Encode(nil, data)

		header := make([]byte, 12)
		binary.LittleEndian.PutUint32(header, uint32(len(data)))
		binary.LittleEndian.PutUint32(header[4:], uint32(len(compressed)))
		copy(header[8:], stringTableSnappyMagic)

		data = append(header, compressed...)
	}

	var b []byte
	b = appendBytes(b, 1, []byte(name))
	b = appendVarint(b, 2, uint64(maxEntries))
	b = appendVarint(b, 3, uint64(len(entries)))
	b = appendVarint(b, 7, uint64(flags))
	b = appendBytes(b, 8, data)

	return netMessage{cmd: netmsg.SvcCreateStringTable, body: b}
}

func updateStringTableMsg(tableID int, entries []stringTableEntry) netMessage {
	var b []byte
	b = appendVarint(b, 1, uint64(tableID))
	b = appendVarint(b, 2, uint64(len(entries)))
	b = appendBytes(b, 3, encodeStringTableData(entries))

	return netMessage{cmd: netmsg.SvcUpdateStringTable, body: b}
}

// encodeStringTableData writes sequential entries without history references.
func encodeStringTableData(entries []stringTableEntry) []byte {
	var w bitwrite.Writer
	w.WriteBit(false)

	for _, e := range entries {
		w.WriteBit(true)
		w.WriteBit(true)
		w.WriteBit(false)
		w.WriteString(e.key)
		w.WriteBit(e.userData != nil)

		if e.userData != nil {
			w.WriteInt(uint64(len(e.userData)), stringTableVarUserDataBits)
			w.WriteBytes(e.userData)
		}
	}

	return w.Bytes()
}

type eventKey struct {
	typ  int32
	name string
}

type eventDescriptor struct {
	id   int32
	name string
	keys []eventKey
}

func gameEventListMsg(descs ...eventDescriptor) netMessage {
	var b []byte

	for _, d := range descs {
		var db []byte
		db = appendVarint(db, 1, uint64(d.id))
		db = appendBytes(db, 2, []byte(d.name))

		for _, k := range d.keys {
			var kb []byte
			kb = appendVarint(kb, 1, uint64(k.typ))
			kb = appendBytes(kb, 2, []byte(k.name))
			db = appendBytes(db, 3, kb)
		}

		b = appendBytes(b, 1, db)
	}

	return netMessage{cmd: netmsg.SvcGameEventList, body: b}
}

// gameEventMsg encodes an event. Values are string, float32, int (long, short and byte keys) or bool.
func gameEventMsg(id int32, keys []eventKey, values ...any) netMessage {
	var b []byte
	b = appendVarint(b, 2, uint64(id))

	for i, v := range values {
		var kb []byte
		kb = appendVarint(kb, 1, uint64(keys[i].typ))

		switch keys[i].typ {
		case netmsg.KeyTypeString:
			kb = appendBytes(kb, 2, []byte(v.(string)))
		case netmsg.KeyTypeFloat:
			kb = appendFloat(kb, 3, v.(float32))
		case netmsg.KeyTypeLong:
			kb = appendVarint(kb, 4, uint64(v.(int)))
		case netmsg.KeyTypeShort:
			kb = appendVarint(kb, 5, uint64(v.(int)))
		case netmsg.KeyTypeByte:
			kb = appendVarint(kb, 6, uint64(v.(int)))
		case netmsg.KeyTypeBool:
			kb = appendVarint(kb, 7, protowire.EncodeBool(v.(bool)))
		}

		b = appendBytes(b, 3, kb)
	}

	return netMessage{cmd: netmsg.SvcGameEvent, body: b}
}

func packetEntitiesMsg(updated int, data []byte) netMessage {
	var b []byte
	b = appendVarint(b, 1, sendtables.MaxEntities)
	b = appendVarint(b, 2, uint64(updated))
	b = appendBytes(b, 7, data)

	return netMessage{cmd: netmsg.SvcPacketEntities, body: b}
}

// player info

func playerInfoData(t *testing.T, info playerInfo) []byte {
	t.Helper()

	raw := rawPlayerInfo{
		XUID:         info.xuid,
		UserID:       int32(info.userID),
		IsFakePlayer: info.isFakePlayer,
		IsHLTV:       info.isHltv,
	}
	copy(raw.Name[:], info.name)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, &raw))

	return buf.Bytes()
}

// data tables

const (
	flagUnsigned    = 1 << 0
	flagNoScale     = 1 << 2
	flagCollapsible = 1 << 11

	testPriority = 128
)

type tableDef struct {
	name  string
	props []netmsg.SendProp
}

type classDef struct {
	name   string
	dtName string
}

func intProp(name string, bits int32) netmsg.SendProp {
	return netmsg.SendProp{Type: int32(sendtables.PropTypeInt), VarName: name, Flags: flagUnsigned, NumBits: bits, Priority: testPriority}
}

func baseClassProp(dtName string) netmsg.SendProp {
	return netmsg.SendProp{Type: int32(sendtables.PropTypeDataTable), VarName: "baseclass", DtName: dtName, Flags: flagCollapsible, Priority: testPriority}
}

func encodeSendProp(p netmsg.SendProp) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(p.Type))
	b = appendBytes(b, 2, []byte(p.VarName))
	b = appendVarint(b, 3, uint64(p.Flags))
	b = appendVarint(b, 4, uint64(p.Priority))

	if p.DtName != "" {
		b = appendBytes(b, 5, []byte(p.DtName))
	}

	b = appendVarint(b, 6, uint64(p.NumElements))
	b = appendFloat(b, 7, p.LowValue)
	b = appendFloat(b, 8, p.HighValue)
	b = appendVarint(b, 9, uint64(p.NumBits))

	return b
}

func writeDataTables(w *bitwrite.Writer, tables []tableDef, classes []classDef) {
	writeTable := func(isEnd bool, t tableDef) {
		var body []byte
		body = appendVarint(body, 1, protowire.EncodeBool(isEnd))
		body = appendBytes(body, 2, []byte(t.name))

		for _, p := range t.props {
			body = appendBytes(body, 4, encodeSendProp(p))
		}

		w.WriteVarInt32(netmsg.SvcSendTable)
		w.WriteVarInt32(uint32(len(body)))
		w.WriteBytes(body)
	}

	for _, t := range tables {
		writeTable(false, t)
	}
	writeTable(true, tableDef{})

	w.WriteInt(uint64(len(classes)), 16)
	for i, c := range classes {
		w.WriteInt(uint64(i), 16)
		w.WriteString(c.name)
		w.WriteString(c.dtName)
	}
}

func vectorProp(name string) netmsg.SendProp {
	return netmsg.SendProp{Type: int32(sendtables.PropTypeVector), VarName: name, Flags: flagNoScale, Priority: testPriority}
}

func tableProp(name, dtName string) netmsg.SendProp {
	return netmsg.SendProp{Type: int32(sendtables.PropTypeDataTable), VarName: name, DtName: dtName, Priority: testPriority}
}

// arrayTable declares the elements 000 to n-1 of a networked array.
func arrayTable(name string, n int, bits int32) tableDef {
	t := tableDef{name: name}
	for i := 0; i < n; i++ {
		t.props = append(t.props, intProp(fmt.Sprintf("%03d", i), bits))
	}
	return t
}

// A minimal CS:GO class hierarchy: teams, players, a pistol sharing its class with another one,
// grenades, bomb sites, rescue zones and infernos.
var (
	testTables = []tableDef{
		{name: "DT_Team", props: []netmsg.SendProp{
			intProp("m_iTeamNum", 6),
			intProp("m_scoreTotal", 8),
			{Type: int32(sendtables.PropTypeString), VarName: "m_szTeamname", Priority: testPriority},
		}},
		{name: "DT_CSTeam", props: []netmsg.SendProp{
			baseClassProp("DT_Team"),
		}},
		{name: "DT_CSPlayer", props: []netmsg.SendProp{
			intProp("m_iHealth", 8),
			intProp("m_iTeamNum", 6),
			intProp("m_iAccount", 16),
			intProp("m_hActiveWeapon", 21),
		}},
		{name: "DT_WeaponCSBase", props: []netmsg.SendProp{
			intProp("m_nModelIndex", 10),
			intProp("m_hOwnerEntity", 21),
			intProp("m_iClip1", 8),
		}},
		{name: "DT_WeaponCSBaseGun", props: []netmsg.SendProp{
			baseClassProp("DT_WeaponCSBase"),
		}},
		{name: "DT_WeaponUsp", props: []netmsg.SendProp{
			baseClassProp("DT_WeaponCSBaseGun"),
		}},
		{name: "DT_BaseCSGrenadeProjectile", props: []netmsg.SendProp{
			intProp("m_nModelIndex", 10),
			intProp("m_hThrower", 21),
			vectorProp("m_vecOrigin"),
		}},
		{name: "DT_SmokeGrenadeProjectile", props: []netmsg.SendProp{
			baseClassProp("DT_BaseCSGrenadeProjectile"),
		}},
		{name: "DT_CollisionProperty", props: []netmsg.SendProp{
			vectorProp("m_vecMins"),
			vectorProp("m_vecMaxs"),
		}},
		{name: "DT_BaseTrigger", props: []netmsg.SendProp{
			tableProp("m_Collision", "DT_CollisionProperty"),
		}},
		{name: "DT_HostageRescueZone", props: []netmsg.SendProp{
			baseClassProp("DT_BaseTrigger"),
			intProp("m_cellbits", 5),
			intProp("m_cellX", 11),
			intProp("m_cellY", 11),
			intProp("m_cellZ", 11),
			vectorProp("m_vecOrigin"),
		}},
		{name: "DT_CSPlayerResource", props: []netmsg.SendProp{
			vectorProp("m_bombsiteCenterA"),
			vectorProp("m_bombsiteCenterB"),
		}},
		arrayTable("m_fireXDelta", 2, 8),
		arrayTable("m_fireYDelta", 2, 8),
		arrayTable("m_bFireIsBurning", 2, 1),
		{name: "DT_Inferno", props: []netmsg.SendProp{
			vectorProp("m_vecOrigin"),
			intProp("m_hOwnerEntity", 21),
			intProp("m_fireCount", 8),
			tableProp("m_fireXDelta", "m_fireXDelta"),
			tableProp("m_fireYDelta", "m_fireYDelta"),
			tableProp("m_bFireIsBurning", "m_bFireIsBurning"),
		}},
	}

	testClasses = []classDef{
		{name: "CTeam", dtName: "DT_Team"},
		{name: "CCSTeam", dtName: "DT_CSTeam"},
		{name: "CCSPlayer", dtName: "DT_CSPlayer"},
		{name: "CWeaponCSBase", dtName: "DT_WeaponCSBase"},
		{name: "CWeaponCSBaseGun", dtName: "DT_WeaponCSBaseGun"},
		{name: "CWeaponUSP", dtName: "DT_WeaponUsp"},
		{name: "CBaseCSGrenadeProjectile", dtName: "DT_BaseCSGrenadeProjectile"},
		{name: "CSmokeGrenadeProjectile", dtName: "DT_SmokeGrenadeProjectile"},
		{name: "CBaseTrigger", dtName: "DT_BaseTrigger"},
		{name: "CCSPlayerResource", dtName: "DT_CSPlayerResource"},
		{name: "CInferno", dtName: "DT_Inferno"},
		{name: "CHostageRescueZone", dtName: "DT_HostageRescueZone"},
	}
)

const (
	classCSTeam          = 1
	classPlayer          = 2
	classUSP             = 5
	classSmokeProjectile = 7
	classTrigger         = 8
	classPlayerResource  = 9
	classInferno         = 10
	classRescueZone      = 11
)

// testSchema decodes the test tables once more to look up flattened prop indices.
func testSchema(t *testing.T) *sendtables.Parser {
	t.Helper()

	var w bitwrite.Writer
	writeDataTables(&w, testTables, testClasses)

	logger, _ := test.NewNullLogger()
	st := sendtables.NewParser(logger)

	r := bitread.NewBytesReader(w.Bytes())
	defer r.Pool()

	require.NoError(t, st.ParsePacket(r))

	return st
}

// propValue is an unsigned int, a string or a vector of a NoScale vector prop.
type propValue struct {
	name  string
	value any
}

// entityWriter builds PacketEntities data.
type entityWriter struct {
	t      *testing.T
	schema *sendtables.Parser
	w      bitwrite.Writer
	last   int
	count  int
}

func newEntityWriter(t *testing.T) *entityWriter {
	return &entityWriter{t: t, schema: testSchema(t), last: -1}
}

func (ew *entityWriter) header(id int) {
	require.Greater(ew.t, id, ew.last, "entities must be written in ascending order")

	ew.w.WriteUBitInt(uint(id - ew.last - 1))
	ew.last = id
	ew.count++
}

func (ew *entityWriter) create(id, classID int, values ...propValue) *entityWriter {
	ew.header(id)
	ew.w.WriteBit(false)
	ew.w.WriteBit(true)
	ew.w.WriteInt(uint64(classID), ew.schema.ClassBits())
	ew.w.WriteInt(uint64(id), 10)
	ew.writeValues(ew.schema.ServerClassByID(classID), values)

	return ew
}

func (ew *entityWriter) update(id, classID int, values ...propValue) *entityWriter {
	ew.header(id)
	ew.w.WriteBit(false)
	ew.w.WriteBit(false)
	ew.writeValues(ew.schema.ServerClassByID(classID), values)

	return ew
}

func (ew *entityWriter) remove(id int) *entityWriter {
	ew.header(id)
	ew.w.WriteBit(true)
	ew.w.WriteBit(true)

	return ew
}

func (ew *entityWriter) writeValues(sc *sendtables.ServerClass, values []propValue) {
	type indexed struct {
		index int
		value any
	}

	var updates []indexed
	for _, v := range values {
		i := sc.PropertyIndex(v.name)
		require.GreaterOrEqual(ew.t, i, 0, "%s has no property %s", sc.Name(), v.name)

		updates = append(updates, indexed{index: i, value: v.value})
	}

	sort.Slice(updates, func(i, j int) bool {
		return updates[i].index < updates[j].index
	})

	indices := make([]int, len(updates))
	for i, u := range updates {
		indices[i] = u.index
	}

	ew.w.WriteFieldIndices(false, indices)

	props := sc.FlattenedProps()
	for _, u := range updates {
		switch val := u.value.(type) {
		case int:
			ew.w.WriteInt(uint64(val), props[u.index].Prop().NumberOfBits)
		case string:
			ew.w.WriteInt(uint64(len(val)), 9)
			ew.w.WriteBytes([]byte(val))
		case r3.Vector:
			ew.w.WriteFloat(float32(val.X))
			ew.w.WriteFloat(float32(val.Y))
			ew.w.WriteFloat(float32(val.Z))
		default:
			ew.t.Fatalf("unsupported value %T", val)
		}
	}
}

func (ew *entityWriter) msg() netMessage {
	return packetEntitiesMsg(ew.count, ew.w.Bytes())
}
