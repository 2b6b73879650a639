// Package sendtables parses the data tables of a demo into server classes and
// decodes the entity updates that reference them.
package sendtables

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
)

const baseClassPropName = "baseclass"

// priorityDefault is the priority used for props that change often.
const priorityDefault = 64

// SendTableProperty is one property declaration of a send table.
type SendTableProperty struct {
	Flags            SendPropertyFlags
	Name             string
	DataTableName    string
	LowValue         float32
	HighValue        float32
	NumberOfBits     int
	NumberOfElements int
	Priority         int
	RawType          PropertyType
}

// SendTable is a named list of property declarations.
type SendTable struct {
	properties []SendTableProperty
	name       string
}

// Name returns the data table name, e.g. "DT_CSPlayer".
func (st *SendTable) Name() string {
	return st.name
}

// FlattenedPropEntry is one entry of a server class' flattened property list.
// Its position in the list is the index entity updates refer to.
type FlattenedPropEntry struct {
	prop             *SendTableProperty
	arrayElementProp *SendTableProperty
	name             string
}

// Name returns the full (dot separated) property name.
func (fpe *FlattenedPropEntry) Name() string {
	return fpe.name
}

// Prop returns the underlying send table property.
func (fpe *FlattenedPropEntry) Prop() *SendTableProperty {
	return fpe.prop
}

// ArrayElementProp returns the element template of an array property, nil otherwise.
func (fpe *FlattenedPropEntry) ArrayElementProp() *SendTableProperty {
	return fpe.arrayElementProp
}

type excludeEntry struct {
	varName     string
	dtName      string
	excludingDt string
}

// Parser builds server classes from the DataTables command.
type Parser struct {
	sendTables         []SendTable
	serverClasses      []*ServerClass
	currentExcludes    []*excludeEntry
	currentBaseclasses []*ServerClass
	instanceBaselines  map[int][]byte
	classBits          int
	logger             logrus.FieldLogger
}

// NewParser returns a parser that logs to logger.
func NewParser(logger logrus.FieldLogger) *Parser {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Parser{
		instanceBaselines: make(map[int][]byte),
		logger:            logger,
	}
}

// ClassBits returns the number of bits used to encode a class id in entity updates.
func (p *Parser) ClassBits() int {
	return p.classBits
}

// ServerClasses returns all server classes, indexed by class id.
func (p *Parser) ServerClasses() []*ServerClass {
	return p.serverClasses
}

// ServerClassByID returns the class with the given id, nil if it does not exist.
func (p *Parser) ServerClassByID(id int) *ServerClass {
	if id < 0 || id >= len(p.serverClasses) {
		return nil
	}
	return p.serverClasses[id]
}

// FindServerClassByName returns the first class named name, nil if none exists.
func (p *Parser) FindServerClassByName(name string) *ServerClass {
	for _, sc := range p.serverClasses {
		if sc.name == name {
			return sc
		}
	}
	return nil
}

// SetInstanceBaseline stores the raw baseline of the class with the given id.
// The data is decoded lazily, the first time an entity of the class is created.
func (p *Parser) SetInstanceBaseline(classID int, data []byte) {
	p.instanceBaselines[classID] = data

	if sc := p.ServerClassByID(classID); sc != nil {
		sc.setBaseline(data)
	}
}

// ParsePacket parses the DataTables command payload.
// It consumes the send tables up to the end marker and the server class list.
func (p *Parser) ParsePacket(r *bitread.BitReader) error {
	for {
		t := r.ReadVarInt32()
		if t != netmsg.SvcSendTable {
			return errors.Errorf("expected send table message (%d), got %d", netmsg.SvcSendTable, t)
		}

		size := int(r.ReadVarInt32())
		st, err := netmsg.UnmarshalSendTable(r.ReadBytes(size))
		if err != nil {
			return errors.Wrap(err, "failed to parse send table")
		}

		if st.IsEnd {
			break
		}

		p.sendTables = append(p.sendTables, parseSendTable(st))
	}

	serverClassCount := int(r.ReadInt(16))
	p.serverClasses = make([]*ServerClass, 0, serverClassCount)

	for i := 0; i < serverClassCount; i++ {
		class := &ServerClass{
			id:            int(r.ReadInt(16)),
			name:          r.ReadString(),
			dataTableName: r.ReadString(),
		}

		if class.id != i {
			return errors.Errorf("server class %q has id %d, expected %d", class.name, class.id, i)
		}

		class.dataTableID = p.tableIndex(class.dataTableName)
		if class.dataTableID < 0 {
			return errors.Errorf("data table %q of server class %q not found", class.dataTableName, class.name)
		}

		if baseline, ok := p.instanceBaselines[class.id]; ok {
			class.setBaseline(baseline)
		}

		p.serverClasses = append(p.serverClasses, class)
	}

	for i := range p.serverClasses {
		if err := p.flattenDataTable(i); err != nil {
			return err
		}
	}

	p.classBits = 0
	if serverClassCount > 0 {
		p.classBits = bitread.BitsFor(serverClassCount - 1)
	}

	p.logger.WithFields(logrus.Fields{
		"sendTables":    len(p.sendTables),
		"serverClasses": serverClassCount,
		"classBits":     p.classBits,
	}).Debug("parsed data tables")

	return nil
}

func parseSendTable(msg *netmsg.SendTable) SendTable {
	st := SendTable{
		name:       msg.NetTableName,
		properties: make([]SendTableProperty, 0, len(msg.Props)),
	}

	for _, prop := range msg.Props {
		st.properties = append(st.properties, SendTableProperty{
			Flags:            SendPropertyFlags(prop.Flags),
			Name:             prop.VarName,
			DataTableName:    prop.DtName,
			LowValue:         prop.LowValue,
			HighValue:        prop.HighValue,
			NumberOfBits:     int(prop.NumBits),
			NumberOfElements: int(prop.NumElements),
			Priority:         int(prop.Priority),
			RawType:          PropertyType(prop.Type),
		})
	}

	return st
}

func (p *Parser) tableIndex(name string) int {
	for i := range p.sendTables {
		if p.sendTables[i].name == name {
			return i
		}
	}
	return -1
}

func (p *Parser) tableByName(name string) (*SendTable, error) {
	i := p.tableIndex(name)
	if i < 0 {
		return nil, errors.Errorf("data table %q not found", name)
	}
	return &p.sendTables[i], nil
}

func (p *Parser) serverClassByDataTableName(dtName string) *ServerClass {
	for _, sc := range p.serverClasses {
		if sc.dataTableName == dtName {
			return sc
		}
	}
	return nil
}

func (p *Parser) flattenDataTable(serverClassIndex int) error {
	class := p.serverClasses[serverClassIndex]
	tab := &p.sendTables[class.dataTableID]

	p.currentExcludes = p.currentExcludes[:0]
	p.currentBaseclasses = p.currentBaseclasses[:0]

	if err := p.gatherExcludesAndBaseClasses(tab, true); err != nil {
		return errors.Wrapf(err, "failed to flatten %s", class.name)
	}

	class.baseClasses = make([]*ServerClass, len(p.currentBaseclasses))
	copy(class.baseClasses, p.currentBaseclasses)

	if err := p.gatherProps(tab, serverClassIndex, ""); err != nil {
		return errors.Wrapf(err, "failed to flatten %s", class.name)
	}

	sortByPriority(class.flattenedProps)

	return nil
}

func (p *Parser) gatherExcludesAndBaseClasses(st *SendTable, collectBaseClasses bool) error {
	for i := range st.properties {
		prop := &st.properties[i]
		if prop.Flags.HasFlagSet(propFlagExclude) {
			p.currentExcludes = append(p.currentExcludes, &excludeEntry{
				varName:     prop.Name,
				dtName:      prop.DataTableName,
				excludingDt: st.name,
			})
		}
	}

	for i := range st.properties {
		prop := &st.properties[i]
		if prop.RawType != PropTypeDataTable {
			continue
		}

		sub, err := p.tableByName(prop.DataTableName)
		if err != nil {
			return err
		}

		if collectBaseClasses && prop.Name == baseClassPropName {
			if err = p.gatherExcludesAndBaseClasses(sub, true); err != nil {
				return err
			}

			if base := p.serverClassByDataTableName(prop.DataTableName); base != nil {
				p.currentBaseclasses = append(p.currentBaseclasses, base)
			}
		} else if err = p.gatherExcludesAndBaseClasses(sub, false); err != nil {
			return err
		}
	}

	return nil
}

func (p *Parser) gatherProps(st *SendTable, serverClassIndex int, prefix string) error {
	var tmpFlattenedProps []FlattenedPropEntry

	if err := p.gatherPropsIterate(st, serverClassIndex, prefix, &tmpFlattenedProps); err != nil {
		return err
	}

	class := p.serverClasses[serverClassIndex]
	class.flattenedProps = append(class.flattenedProps, tmpFlattenedProps...)

	return nil
}

func (p *Parser) gatherPropsIterate(tab *SendTable, serverClassIndex int, prefix string, flattenedProps *[]FlattenedPropEntry) error {
	for i := range tab.properties {
		prop := &tab.properties[i]

		if prop.Flags.HasFlagSet(propFlagInsideArray) || prop.Flags.HasFlagSet(propFlagExclude) || p.isPropertyExcluded(tab, prop) {
			continue
		}

		switch prop.RawType {
		case PropTypeDataTable:
			sub, err := p.tableByName(prop.DataTableName)
			if err != nil {
				return err
			}

			if prop.Flags.HasFlagSet(propFlagCollapsible) {
				err = p.gatherPropsIterate(sub, serverClassIndex, prefix, flattenedProps)
			} else {
				nfix := prefix
				if prop.Name != "" {
					nfix += prop.Name + "."
				}
				err = p.gatherProps(sub, serverClassIndex, nfix)
			}

			if err != nil {
				return err
			}

		case PropTypeArray:
			if i == 0 {
				return errors.Errorf("array prop %s%s of %s has no element declaration", prefix, prop.Name, tab.name)
			}

			*flattenedProps = append(*flattenedProps, FlattenedPropEntry{
				name:             prefix + prop.Name,
				prop:             prop,
				arrayElementProp: &tab.properties[i-1],
			})

		default:
			*flattenedProps = append(*flattenedProps, FlattenedPropEntry{
				name: prefix + prop.Name,
				prop: prop,
			})
		}
	}

	return nil
}

func (p *Parser) isPropertyExcluded(tab *SendTable, prop *SendTableProperty) bool {
	for _, ex := range p.currentExcludes {
		if tab.name == ex.dtName && prop.Name == ex.varName {
			return true
		}
	}
	return false
}

// sortByPriority moves props forward priority by priority.
// Props flagged ChangesOften count as the default priority.
// Props are swapped into place, not stably sorted: update indices depend on the exact order.
func sortByPriority(props []FlattenedPropEntry) {
	prioSet := map[int]struct{}{priorityDefault: {}}
	for i := range props {
		prioSet[props[i].prop.Priority] = struct{}{}
	}

	prios := make([]int, 0, len(prioSet))
	for prio := range prioSet {
		prios = append(prios, prio)
	}
	sort.Ints(prios)

	start := 0
	for _, prio := range prios {
		for {
			cp := start
			for ; cp < len(props); cp++ {
				prop := props[cp].prop
				if prop.Priority == prio || (prio == priorityDefault && prop.Flags.HasFlagSet(propFlagChangesOften)) {
					props[start], props[cp] = props[cp], props[start]
					start++
					break
				}
			}

			if cp == len(props) {
				break
			}
		}
	}
}
