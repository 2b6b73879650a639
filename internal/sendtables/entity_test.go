package sendtables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
	"github.com/dualitycsgo1/csgodemo/internal/bitwrite"
	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
)

func readIndices(t *testing.T, data []byte) []int {
	t.Helper()

	r := bitread.NewBytesReader(data)
	defer r.Pool()

	return readFieldIndices(r, nil)
}

func TestReadFieldIndex_Sentinel(t *testing.T) {
	for _, newWay := range []bool{false, true} {
		indices := []int{0, 1, 2, 7, 40, 41, 200, 1000, 1500}

		var w bitwrite.Writer
		w.WriteFieldIndices(newWay, indices)
		// trailing garbage after the sentinel must not be consumed as an index
		w.WriteInt(0x55, 8)

		assert.Equal(t, indices, readIndices(t, w.Bytes()), "newWay=%v", newWay)
	}
}

func TestReadFieldIndex_StrictlyIncreasing(t *testing.T) {
	var w bitwrite.Writer
	w.WriteBit(false)
	for i := 0; i < 50; i++ {
		w.WriteFieldIndexDelta(i % 7)
	}
	w.WriteFieldIndexEnd()

	indices := readIndices(t, w.Bytes())
	require.Len(t, indices, 50)

	for i := 1; i < len(indices); i++ {
		assert.Greater(t, indices[i], indices[i-1])
	}
}

func TestReadFieldIndex_ShortForm(t *testing.T) {
	var w bitwrite.Writer
	w.WriteBit(true) // new way
	w.WriteBit(false)
	w.WriteBit(true) // 3 bit form
	w.WriteInt(2, 3)
	w.WriteBit(true) // next index
	w.WriteBit(false)
	w.WriteBit(false)
	w.WriteFieldIndexEnd()

	assert.Equal(t, []int{2, 3}, readIndices(t, w.Bytes()))
}

func TestReadFieldIndex_EmptyList(t *testing.T) {
	var w bitwrite.Writer
	w.WriteFieldIndices(false, nil)

	assert.Empty(t, readIndices(t, w.Bytes()))
}

func TestReadPropertyUpdates_RoundTrip(t *testing.T) {
	p := newTestParser(t)
	child := p.FindServerClassByName("CChild")

	indices := []int{idxSpeed, idxHealth, idxArr, idxDucking}

	var w bitwrite.Writer
	w.WriteFieldIndices(true, indices)
	writeChildValues(&w, indices, 250.5, 87, []int{1, 15, 3}, true)

	r := bitread.NewBytesReader(w.Bytes())
	defer r.Pool()

	updates, err := readPropertyUpdates(r, child.FlattenedProps())
	require.NoError(t, err)

	expected := []propertyUpdate{
		{index: idxSpeed, value: PropertyValue{FloatVal: 250.5}},
		{index: idxHealth, value: PropertyValue{IntVal: 87}},
		{index: idxArr, value: PropertyValue{ArrayVal: []PropertyValue{{IntVal: 1}, {IntVal: 15}, {IntVal: 3}}}},
		{index: idxDucking, value: PropertyValue{IntVal: 1}},
	}
	assert.Equal(t, expected, updates)
}

func TestReadPropertyUpdates_IndexOutOfRange(t *testing.T) {
	p := newTestParser(t)
	child := p.FindServerClassByName("CChild")

	var w bitwrite.Writer
	w.WriteFieldIndices(false, []int{10})

	r := bitread.NewBytesReader(w.Bytes())
	defer r.Pool()

	_, err := readPropertyUpdates(r, child.FlattenedProps())
	assert.Error(t, err)
}

type packetBuilder struct {
	w         bitwrite.Writer
	last      int
	updated   int32
	classBits int
}

func newPacketBuilder(classBits int) *packetBuilder {
	return &packetBuilder{last: -1, classBits: classBits}
}

func (b *packetBuilder) header(id int) {
	b.w.WriteUBitInt(uint(id - b.last - 1))
	b.last = id
	b.updated++
}

func (b *packetBuilder) enter(id, classID int, write func(w *bitwrite.Writer)) {
	b.header(id)
	b.w.WriteBit(false)
	b.w.WriteBit(true)
	b.w.WriteInt(uint64(classID), b.classBits)
	b.w.WriteInt(uint64(id), entityHandleSerialNumberBits)
	write(&b.w)
}

func (b *packetBuilder) delta(id int, write func(w *bitwrite.Writer)) {
	b.header(id)
	b.w.WriteBit(false)
	b.w.WriteBit(false)
	write(&b.w)
}

func (b *packetBuilder) leave(id int, del bool) {
	b.header(id)
	b.w.WriteBit(true)
	b.w.WriteBit(del)
}

func (b *packetBuilder) msg(updateBaseline bool) *netmsg.PacketEntities {
	return &netmsg.PacketEntities{
		MaxEntries:     MaxEntities,
		UpdatedEntries: b.updated,
		UpdateBaseline: updateBaseline,
		EntityData:     b.w.Bytes(),
	}
}

func emptyDelta(w *bitwrite.Writer) {
	w.WriteFieldIndices(false, nil)
}

func childDelta(indices []int, speed float32, health int, arr []int, ducking bool) func(w *bitwrite.Writer) {
	return func(w *bitwrite.Writer) {
		w.WriteFieldIndices(false, indices)
		writeChildValues(w, indices, speed, health, arr, ducking)
	}
}

func childValues(e *Entity) []PropertyValue {
	return e.snapshot()
}

func TestEnterPVS_ClassBaselineThenEmptyDelta(t *testing.T) {
	p := newTestParser(t)
	child := p.FindServerClassByName("CChild")

	var bl bitwrite.Writer
	childDelta([]int{idxHealth, idxArr}, 0, 100, []int{4, 2}, false)(&bl)
	p.SetInstanceBaseline(child.ID(), bl.Bytes())

	table := NewEntityTable(p)

	b := newPacketBuilder(p.ClassBits())
	b.enter(5, child.ID(), emptyDelta)
	require.NoError(t, table.HandlePacketEntities(b.msg(false)))

	e := table.Entity(5)
	require.NotNil(t, e)
	assert.Equal(t, child, e.ServerClass())

	expected := []PropertyValue{
		idxSpeed:   {},
		idxHealth:  {IntVal: 100},
		idxArr:     {ArrayVal: []PropertyValue{{IntVal: 4}, {IntVal: 2}}},
		idxDucking: {},
	}
	assert.Equal(t, expected, childValues(e))

	// the decoded baseline is memoised on the class
	assert.Len(t, child.preprocessedBaseline, 2)
}

func TestApplyUpdate_Idempotent(t *testing.T) {
	p := newTestParser(t)
	child := p.FindServerClassByName("CChild")

	var w bitwrite.Writer
	update := childDelta([]int{idxSpeed, idxHealth, idxDucking}, 1.25, 42, nil, true)
	update(&w)
	update(&w)

	r := bitread.NewBytesReader(w.Bytes())
	defer r.Pool()

	e := child.newEntity(1, 1)

	require.NoError(t, e.ApplyUpdate(r))
	once := childValues(e)

	require.NoError(t, e.ApplyUpdate(r))
	assert.Equal(t, once, childValues(e))
	assert.Equal(t, 42, e.Property("m_iHealth").Value().IntVal)
}

func TestEntityCreated_ObserversSeeBaselineAndDelta(t *testing.T) {
	p := newTestParser(t)
	child := p.FindServerClassByName("CChild")

	var bl bitwrite.Writer
	childDelta([]int{idxHealth}, 0, 100, nil, false)(&bl)
	p.SetInstanceBaseline(child.ID(), bl.Bytes())

	type change struct{ old, val int }
	var (
		changes  []change
		finished bool
	)

	child.OnEntityCreated(func(e *Entity) {
		e.Property("m_iHealth").OnIntUpdate(func(old, val int) {
			changes = append(changes, change{old, val})
		})
		e.OnCreateFinished(func() {
			finished = true
		})
	})

	table := NewEntityTable(p)

	b := newPacketBuilder(p.ClassBits())
	b.enter(3, child.ID(), childDelta([]int{idxHealth}, 0, 50, nil, false))
	require.NoError(t, table.HandlePacketEntities(b.msg(false)))

	assert.Equal(t, []change{{0, 100}, {100, 50}}, changes)
	assert.True(t, finished)
}

func TestPacketEntities_InstanceBaseline(t *testing.T) {
	p := newTestParser(t)
	child := p.FindServerClassByName("CChild")

	table := NewEntityTable(p)

	b := newPacketBuilder(p.ClassBits())
	b.enter(7, child.ID(), childDelta([]int{idxSpeed, idxHealth}, 3.5, 77, nil, false))
	require.NoError(t, table.HandlePacketEntities(b.msg(true)))

	snapshot := childValues(table.Entity(7))

	b = newPacketBuilder(p.ClassBits())
	b.leave(7, true)
	require.NoError(t, table.HandlePacketEntities(b.msg(false)))
	assert.Nil(t, table.Entity(7))

	b = newPacketBuilder(p.ClassBits())
	b.enter(7, child.ID(), emptyDelta)
	require.NoError(t, table.HandlePacketEntities(b.msg(false)))

	require.NotNil(t, table.Entity(7))
	assert.Equal(t, snapshot, childValues(table.Entity(7)))

	// a different class in the same slot ignores the snapshot
	base := p.FindServerClassByName("CBase")

	b = newPacketBuilder(p.ClassBits())
	b.enter(7, base.ID(), emptyDelta)
	require.NoError(t, table.HandlePacketEntities(b.msg(false)))

	assert.Equal(t, 0, table.Entity(7).Property("m_iHealth").Value().IntVal)
}

func TestPacketEntities_DeltaAndDelete(t *testing.T) {
	p := newTestParser(t)
	child := p.FindServerClassByName("CChild")

	table := NewEntityTable(p)

	b := newPacketBuilder(p.ClassBits())
	b.enter(1, child.ID(), emptyDelta)
	b.enter(4, child.ID(), emptyDelta)
	require.NoError(t, table.HandlePacketEntities(b.msg(false)))
	assert.Len(t, table.Entities(), 2)

	var destroyed bool
	table.Entity(4).OnDestroy(func() {
		destroyed = true
	})
	health := table.Entity(4).Property("m_iHealth")
	health.OnIntUpdate(func(int, int) {})

	b = newPacketBuilder(p.ClassBits())
	b.delta(1, childDelta([]int{idxDucking}, 0, 0, nil, true))
	b.leave(4, true)
	require.NoError(t, table.HandlePacketEntities(b.msg(false)))

	assert.Equal(t, 1, table.Entity(1).Property("m_Local.m_bDucking").Value().IntVal)
	assert.Nil(t, table.Entity(4))
	assert.True(t, destroyed)
	assert.Zero(t, health.ObserverCount())
}

func TestPacketEntities_DeltaForMissingEntity(t *testing.T) {
	p := newTestParser(t)
	table := NewEntityTable(p)

	b := newPacketBuilder(p.ClassBits())
	b.delta(9, emptyDelta)

	assert.Error(t, table.HandlePacketEntities(b.msg(false)))
}

func TestEntityTable_DestroyAll(t *testing.T) {
	p := newTestParser(t)
	child := p.FindServerClassByName("CChild")
	table := NewEntityTable(p)

	b := newPacketBuilder(p.ClassBits())
	b.enter(2, child.ID(), emptyDelta)
	require.NoError(t, table.HandlePacketEntities(b.msg(false)))

	var destroyed int
	table.Entity(2).OnDestroy(func() {
		destroyed++
	})

	table.DestroyAll()

	assert.Empty(t, table.Entities())
	assert.Equal(t, 1, destroyed)
}
