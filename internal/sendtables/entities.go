package sendtables

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
)

const (
	// MaxEntities is the number of entity slots.
	MaxEntities = 1 << maxEdictBits

	maxEdictBits                 = 11
	entityHandleSerialNumberBits = 10
)

type entityBaseline struct {
	classID int
	values  []PropertyValue
}

// EntityTable owns every live entity and the per-entity baselines.
type EntityTable struct {
	parser    *Parser
	entities  [MaxEntities]*Entity
	baselines map[int]entityBaseline
	logger    logrus.FieldLogger
}

// NewEntityTable returns an empty table decoding against the classes of parser.
func NewEntityTable(parser *Parser) *EntityTable {
	return &EntityTable{
		parser:    parser,
		baselines: make(map[int]entityBaseline),
		logger:    parser.logger,
	}
}

// Entity returns the entity with the given id, nil if the slot is empty.
func (t *EntityTable) Entity(id int) *Entity {
	if id < 0 || id >= MaxEntities {
		return nil
	}
	return t.entities[id]
}

// Entities returns all live entities ordered by id.
func (t *EntityTable) Entities() []*Entity {
	var res []*Entity
	for _, e := range t.entities {
		if e != nil {
			res = append(res, e)
		}
	}
	return res
}

// DestroyAll destroys every live entity and empties the table.
func (t *EntityTable) DestroyAll() {
	for i, e := range t.entities {
		if e != nil {
			e.Destroy()
			t.entities[i] = nil
		}
	}
}

// HandlePacketEntities applies a PacketEntities message.
// Each updated entity header is either an enter-PVS (create), a delta, or a leave (optionally with delete).
func (t *EntityTable) HandlePacketEntities(msg *netmsg.PacketEntities) error {
	r := bitread.NewBytesReader(msg.EntityData)
	defer r.Pool()

	currentEntity := -1
	for i := 0; i < int(msg.UpdatedEntries); i++ {
		currentEntity += 1 + int(r.ReadUBitInt())
		if currentEntity >= MaxEntities {
			return errors.Errorf("entity id %d out of range", currentEntity)
		}

		if r.ReadBit() {
			// leave PVS
			if r.ReadBit() {
				t.deleteEntity(currentEntity)
			}

			continue
		}

		var (
			e   *Entity
			err error
		)

		if r.ReadBit() {
			e, err = t.enterPVS(r, currentEntity)
		} else {
			e = t.entities[currentEntity]
			if e == nil {
				return errors.Errorf("delta update for nonexistent entity %d", currentEntity)
			}
			err = e.ApplyUpdate(r)
		}

		if err != nil {
			return err
		}

		if msg.UpdateBaseline {
			t.baselines[currentEntity] = entityBaseline{
				classID: e.serverClass.id,
				values:  e.snapshot(),
			}
		}
	}

	return nil
}

func (t *EntityTable) deleteEntity(id int) {
	if e := t.entities[id]; e != nil {
		e.Destroy()
		t.entities[id] = nil
	}
}

// enterPVS creates an entity. Stale occupants of the slot are destroyed first.
// Created handlers run before any value is set so their observers see the baselines.
func (t *EntityTable) enterPVS(r *bitread.BitReader, id int) (*Entity, error) {
	classID := int(r.ReadInt(t.parser.classBits))
	serialNum := int(r.ReadInt(entityHandleSerialNumberBits))

	class := t.parser.ServerClassByID(classID)
	if class == nil {
		return nil, errors.Errorf("entity %d has unknown class id %d", id, classID)
	}

	t.deleteEntity(id)

	e := class.newEntity(id, serialNum)
	t.entities[id] = e

	for _, h := range class.createdHandlers {
		h(e)
	}

	baseline, err := class.classBaseline()
	if err != nil {
		return nil, err
	}
	e.applyUpdates(baseline)

	if bl, ok := t.baselines[id]; ok && bl.classID == classID {
		for i := range bl.values {
			e.props[i].set(bl.values[i])
		}
	}

	if err = e.ApplyUpdate(r); err != nil {
		return nil, err
	}

	e.createFinished()

	t.logger.WithFields(logrus.Fields{
		"id":    id,
		"class": class.name,
	}).Trace("entity created")

	return e, nil
}
