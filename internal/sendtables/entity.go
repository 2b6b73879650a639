package sendtables

import (
	"fmt"

	"github.com/golang/geo/r3"
	unassert "github.com/markus-wa/go-unassert"
	"github.com/pkg/errors"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
)

// fieldIndexEnd terminates the list of changed field indices of an entity update.
const fieldIndexEnd = 0xFFF

// EntityCreatedHandler is called when an entity of a server class is created,
// before any of its values are set.
type EntityCreatedHandler func(*Entity)

// ServerClass is a networked entity type.
type ServerClass struct {
	id             int
	name           string
	dataTableID    int
	dataTableName  string
	baseClasses    []*ServerClass
	flattenedProps []FlattenedPropEntry
	propIndex      map[string]int

	createdHandlers []EntityCreatedHandler

	instanceBaseline     []byte
	preprocessedBaseline []propertyUpdate
}

// ID returns the class id, which is its position in the server class list.
func (sc *ServerClass) ID() int {
	return sc.id
}

// Name returns the class name, e.g. "CCSPlayer".
func (sc *ServerClass) Name() string {
	return sc.name
}

// DataTableName returns the name of the class' send table, e.g. "DT_CSPlayer".
func (sc *ServerClass) DataTableName() string {
	return sc.dataTableName
}

// BaseClasses returns the base classes, root first.
func (sc *ServerClass) BaseClasses() []*ServerClass {
	return sc.baseClasses
}

// HasBaseClass returns true if a class named name is among the base classes.
func (sc *ServerClass) HasBaseClass(name string) bool {
	for _, bc := range sc.baseClasses {
		if bc.name == name {
			return true
		}
	}
	return false
}

// FlattenedProps returns the flattened, priority sorted property list.
func (sc *ServerClass) FlattenedProps() []FlattenedPropEntry {
	return sc.flattenedProps
}

// PropertyIndex returns the index of the named property, -1 if the class has no such property.
func (sc *ServerClass) PropertyIndex(name string) int {
	if sc.propIndex == nil {
		sc.propIndex = make(map[string]int, len(sc.flattenedProps))
		for i := range sc.flattenedProps {
			sc.propIndex[sc.flattenedProps[i].name] = i
		}
	}

	if i, ok := sc.propIndex[name]; ok {
		return i
	}
	return -1
}

// OnEntityCreated registers a handler for every entity of this class created from now on.
func (sc *ServerClass) OnEntityCreated(handler EntityCreatedHandler) {
	sc.createdHandlers = append(sc.createdHandlers, handler)
}

func (sc *ServerClass) String() string {
	return fmt.Sprintf("ServerClass{ID: %d, Name: %s, DataTable: %s, Props: %d}", sc.id, sc.name, sc.dataTableName, len(sc.flattenedProps))
}

func (sc *ServerClass) setBaseline(data []byte) {
	sc.instanceBaseline = data
	sc.preprocessedBaseline = nil
}

// classBaseline returns the decoded instance baseline, decoding it on first use.
func (sc *ServerClass) classBaseline() ([]propertyUpdate, error) {
	if sc.preprocessedBaseline != nil || sc.instanceBaseline == nil {
		return sc.preprocessedBaseline, nil
	}

	r := bitread.NewBytesReader(sc.instanceBaseline)
	defer r.Pool()

	updates, err := readPropertyUpdates(r, sc.flattenedProps)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode baseline of %s", sc.name)
	}

	sc.preprocessedBaseline = updates
	return updates, nil
}

func (sc *ServerClass) newEntity(id, serialNum int) *Entity {
	e := &Entity{
		serverClass: sc,
		id:          id,
		serialNum:   serialNum,
		props:       make([]Property, len(sc.flattenedProps)),
	}

	for i := range sc.flattenedProps {
		e.props[i].entry = &sc.flattenedProps[i]
	}

	return e
}

// Entity is a live networked object.
type Entity struct {
	serverClass *ServerClass
	id          int
	serialNum   int
	props       []Property

	onCreateFinished []func()
	onDestroy        []func()
}

// ID returns the entity id (edict index).
func (e *Entity) ID() int {
	return e.id
}

// SerialNum returns the serial number the entity was created with.
func (e *Entity) SerialNum() int {
	return e.serialNum
}

// ServerClass returns the entity's class.
func (e *Entity) ServerClass() *ServerClass {
	return e.serverClass
}

// Properties returns all properties, in flattened prop order.
func (e *Entity) Properties() []Property {
	return e.props
}

// Property returns the named property, nil if the entity has no such property.
func (e *Entity) Property(name string) *Property {
	i := e.serverClass.PropertyIndex(name)
	if i < 0 {
		return nil
	}
	return &e.props[i]
}

// PropertyValue returns the current value of the named property.
func (e *Entity) PropertyValue(name string) (PropertyValue, bool) {
	prop := e.Property(name)
	if prop == nil {
		return PropertyValue{}, false
	}
	return prop.value, true
}

// OnCreateFinished registers a handler that runs once the entity's baselines and
// first update have been applied.
func (e *Entity) OnCreateFinished(handler func()) {
	e.onCreateFinished = append(e.onCreateFinished, handler)
}

// OnDestroy registers a handler that runs when the entity is deleted.
func (e *Entity) OnDestroy(handler func()) {
	e.onDestroy = append(e.onDestroy, handler)
}

// Destroy fires the destroy handlers and drops every registered observer.
func (e *Entity) Destroy() {
	for _, h := range e.onDestroy {
		h()
	}

	e.onDestroy = nil
	e.onCreateFinished = nil

	for i := range e.props {
		e.props[i].unbind()
	}
}

func (e *Entity) createFinished() {
	for _, h := range e.onCreateFinished {
		h()
	}
	e.onCreateFinished = nil
}

// ApplyUpdate reads one delta from r and applies it.
// Observers of the changed properties are called in index order.
func (e *Entity) ApplyUpdate(r *bitread.BitReader) error {
	updates, err := readPropertyUpdates(r, e.serverClass.flattenedProps)
	if err != nil {
		return errors.Wrapf(err, "entity %d (%s)", e.id, e.serverClass.name)
	}

	e.applyUpdates(updates)

	return nil
}

func (e *Entity) applyUpdates(updates []propertyUpdate) {
	for _, u := range updates {
		e.props[u.index].set(u.value)
	}
}

func (e *Entity) snapshot() []PropertyValue {
	values := make([]PropertyValue, len(e.props))
	for i := range e.props {
		values[i] = e.props[i].value
	}
	return values
}

type propertyUpdate struct {
	index int
	value PropertyValue
}

// readPropertyUpdates reads all changed indices first, then their values in that order.
func readPropertyUpdates(r *bitread.BitReader, props []FlattenedPropEntry) ([]propertyUpdate, error) {
	indices := readFieldIndices(r, make([]int, 0, 16))

	updates := make([]propertyUpdate, 0, len(indices))
	for _, idx := range indices {
		if idx >= len(props) {
			return nil, errors.Errorf("field index %d out of range (%d props)", idx, len(props))
		}

		updates = append(updates, propertyUpdate{
			index: idx,
			value: propDecoder.decodeProp(&props[idx], r),
		})
	}

	return updates, nil
}

func readFieldIndices(r *bitread.BitReader, buf []int) []int {
	newWay := r.ReadBit()

	for idx := readFieldIndex(r, -1, newWay); idx != -1; idx = readFieldIndex(r, idx, newWay) {
		buf = append(buf, idx)
	}

	return buf
}

// readFieldIndex returns the next changed field index, -1 at the end of the list.
func readFieldIndex(r *bitread.BitReader, lastIndex int, newWay bool) int {
	if newWay && r.ReadBit() {
		return lastIndex + 1
	}

	var ret uint
	if newWay && r.ReadBit() {
		ret = r.ReadInt(3)
	} else {
		ret = r.ReadInt(7)
		switch ret & (32 | 64) {
		case 32:
			ret = (ret &^ 96) | (r.ReadInt(2) << 5)
		case 64:
			ret = (ret &^ 96) | (r.ReadInt(4) << 5)
		case 96:
			ret = (ret &^ 96) | (r.ReadInt(7) << 5)
		}
	}

	if ret == fieldIndexEnd {
		return -1
	}

	return lastIndex + 1 + int(ret)
}

// PropertyUpdateHandler is called with the previous and the new value of a property.
type PropertyUpdateHandler func(old, val PropertyValue)

// Property is one slot of an entity, holding the current value and its observers.
type Property struct {
	entry *FlattenedPropEntry
	value PropertyValue

	updateHandlers  []PropertyUpdateHandler
	intObservers    []func(old, val int)
	int64Observers  []func(old, val int64)
	floatObservers  []func(old, val float32)
	vectorObservers []func(old, val r3.Vector)
	stringObservers []func(old, val string)
	arrayObservers  []func(old, val []PropertyValue)
}

// Name returns the flattened property name.
func (pe *Property) Name() string {
	return pe.entry.name
}

// Entry returns the flattened prop this property decodes.
func (pe *Property) Entry() *FlattenedPropEntry {
	return pe.entry
}

// Value returns the current value.
func (pe *Property) Value() PropertyValue {
	return pe.value
}

// Type returns the wire type of the property.
func (pe *Property) Type() PropertyType {
	return pe.entry.prop.RawType
}

// OnUpdate registers a handler that receives every change regardless of the wire type.
func (pe *Property) OnUpdate(handler PropertyUpdateHandler) {
	pe.updateHandlers = append(pe.updateHandlers, handler)
}

// OnUpdateOf registers a handler that receives every change of a property of the wire type t.
func (pe *Property) OnUpdateOf(t PropertyType, handler PropertyUpdateHandler) {
	pe.assertType(t)
	pe.updateHandlers = append(pe.updateHandlers, handler)
}

// OnIntUpdate registers an observer for an Int property.
func (pe *Property) OnIntUpdate(handler func(old, val int)) {
	pe.assertType(PropTypeInt)
	pe.intObservers = append(pe.intObservers, handler)
}

// OnInt64Update registers an observer for an Int64 property.
func (pe *Property) OnInt64Update(handler func(old, val int64)) {
	pe.assertType(PropTypeInt64)
	pe.int64Observers = append(pe.int64Observers, handler)
}

// OnFloatUpdate registers an observer for a Float property.
func (pe *Property) OnFloatUpdate(handler func(old, val float32)) {
	pe.assertType(PropTypeFloat)
	pe.floatObservers = append(pe.floatObservers, handler)
}

// OnVectorUpdate registers an observer for a Vector property.
func (pe *Property) OnVectorUpdate(handler func(old, val r3.Vector)) {
	pe.assertType(PropTypeVector)
	pe.vectorObservers = append(pe.vectorObservers, handler)
}

// OnVectorXYUpdate registers an observer for a VectorXY property. Z is always 0.
func (pe *Property) OnVectorXYUpdate(handler func(old, val r3.Vector)) {
	pe.assertType(PropTypeVectorXY)
	pe.vectorObservers = append(pe.vectorObservers, handler)
}

// OnStringUpdate registers an observer for a String property.
func (pe *Property) OnStringUpdate(handler func(old, val string)) {
	pe.assertType(PropTypeString)
	pe.stringObservers = append(pe.stringObservers, handler)
}

// OnArrayUpdate registers an observer for an Array property.
func (pe *Property) OnArrayUpdate(handler func(old, val []PropertyValue)) {
	pe.assertType(PropTypeArray)
	pe.arrayObservers = append(pe.arrayObservers, handler)
}

// assertType checks (in debug builds) that a typed observer matches the declared wire type.
func (pe *Property) assertType(t PropertyType) {
	unassert.True(pe.entry.prop.RawType == t)
}

func (pe *Property) set(val PropertyValue) {
	old := pe.value
	pe.value = val

	for _, h := range pe.intObservers {
		h(old.IntVal, val.IntVal)
	}
	for _, h := range pe.int64Observers {
		h(old.Int64Val, val.Int64Val)
	}
	for _, h := range pe.floatObservers {
		h(old.FloatVal, val.FloatVal)
	}
	for _, h := range pe.vectorObservers {
		h(old.VectorVal, val.VectorVal)
	}
	for _, h := range pe.stringObservers {
		h(old.StringVal, val.StringVal)
	}
	for _, h := range pe.arrayObservers {
		h(old.ArrayVal, val.ArrayVal)
	}
	for _, h := range pe.updateHandlers {
		h(old, val)
	}
}

func (pe *Property) unbind() {
	pe.updateHandlers = nil
	pe.intObservers = nil
	pe.int64Observers = nil
	pe.floatObservers = nil
	pe.vectorObservers = nil
	pe.stringObservers = nil
	pe.arrayObservers = nil
}

// ObserverCount returns the number of observers bound to the property.
func (pe *Property) ObserverCount() int {
	return len(pe.updateHandlers) + len(pe.intObservers) + len(pe.int64Observers) + len(pe.floatObservers) +
		len(pe.vectorObservers) + len(pe.stringObservers) + len(pe.arrayObservers)
}
