package netmsg

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// netmessages.proto, restricted to the messages and fields the decoder reads.
// Field names and numbers follow the CS:GO definitions.
var netMessagesProto = &descriptorpb.FileDescriptorProto{
	Name:   proto.String("netmessages.proto"),
	Syntax: proto.String("proto2"),
	MessageType: []*descriptorpb.DescriptorProto{
		message("CSVCMsg_ServerInfo",
			optional("protocol", 1, typeInt32),
			optional("max_clients", 11, typeInt32),
			optional("max_classes", 12, typeInt32),
			optional("tick_interval", 14, typeFloat),
			optional("game_dir", 15, typeString),
			optional("map_name", 16, typeString),
			optional("host_name", 19, typeString),
		),
		withNested(
			message("CSVCMsg_SendTable",
				optional("is_end", 1, typeBool),
				optional("net_table_name", 2, typeString),
				optional("needs_decoder", 3, typeBool),
				repeated("props", 4, ".CSVCMsg_SendTable.sendprop_t"),
			),
			message("sendprop_t",
				optional("type", 1, typeInt32),
				optional("var_name", 2, typeString),
				optional("flags", 3, typeInt32),
				optional("priority", 4, typeInt32),
				optional("dt_name", 5, typeString),
				optional("num_elements", 6, typeInt32),
				optional("low_value", 7, typeFloat),
				optional("high_value", 8, typeFloat),
				optional("num_bits", 9, typeInt32),
			),
		),
		message("CSVCMsg_CreateStringTable",
			optional("name", 1, typeString),
			optional("max_entries", 2, typeInt32),
			optional("num_entries", 3, typeInt32),
			optional("user_data_fixed_size", 4, typeBool),
			optional("user_data_size", 5, typeInt32),
			optional("user_data_size_bits", 6, typeInt32),
			optional("flags", 7, typeInt32),
			optional("string_data", 8, typeBytes),
		),
		message("CSVCMsg_UpdateStringTable",
			optional("table_id", 1, typeInt32),
			optional("num_changed_entries", 2, typeInt32),
			optional("string_data", 3, typeBytes),
		),
		message("CSVCMsg_PacketEntities",
			optional("max_entries", 1, typeInt32),
			optional("updated_entries", 2, typeInt32),
			optional("is_delta", 3, typeBool),
			optional("update_baseline", 4, typeBool),
			optional("baseline", 5, typeInt32),
			optional("delta_from", 6, typeInt32),
			optional("entity_data", 7, typeBytes),
		),
		withNested(
			message("CSVCMsg_GameEventList",
				repeated("descriptors", 1, ".CSVCMsg_GameEventList.descriptor_t"),
			),
			message("key_t",
				optional("type", 1, typeInt32),
				optional("name", 2, typeString),
			),
			message("descriptor_t",
				optional("eventid", 1, typeInt32),
				optional("name", 2, typeString),
				repeated("keys", 3, ".CSVCMsg_GameEventList.key_t"),
			),
		),
		withNested(
			message("CSVCMsg_GameEvent",
				optional("event_name", 1, typeString),
				optional("eventid", 2, typeInt32),
				repeated("keys", 3, ".CSVCMsg_GameEvent.key_t"),
			),
			message("key_t",
				optional("type", 1, typeInt32),
				optional("val_string", 2, typeString),
				optional("val_float", 3, typeFloat),
				optional("val_long", 4, typeInt32),
				optional("val_short", 5, typeInt32),
				optional("val_byte", 6, typeInt32),
				optional("val_bool", 7, typeBool),
				optional("val_uint64", 8, typeUint64),
				optional("val_wstring", 9, typeBytes),
			),
		),
	},
}

const (
	typeInt32  = descriptorpb.FieldDescriptorProto_TYPE_INT32
	typeUint64 = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	typeBool   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	typeFloat  = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	typeString = descriptorpb.FieldDescriptorProto_TYPE_STRING
	typeBytes  = descriptorpb.FieldDescriptorProto_TYPE_BYTES
)

func message(name string, fs ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name:  proto.String(name),
		Field: fs,
	}
}

// withNested declares nested message types of m.
func withNested(m *descriptorpb.DescriptorProto, nested ...*descriptorpb.DescriptorProto) *descriptorpb.DescriptorProto {
	m.NestedType = nested
	return m
}

func optional(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func repeated(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(typeName),
	}
}

var messages = loadMessages()

func loadMessages() protoreflect.MessageDescriptors {
	fd, err := protodesc.NewFile(netMessagesProto, nil)
	if err != nil {
		panic(errors.Wrap(err, "invalid net message schema"))
	}
	return fd.Messages()
}

// fields reads the decoded fields of a message by name.
type fields struct {
	msg protoreflect.Message
}

func unmarshal(name protoreflect.Name, b []byte) (fields, error) {
	msg := dynamicpb.NewMessage(messages.ByName(name))
	if err := proto.Unmarshal(b, msg); err != nil {
		return fields{}, errors.Wrap(err, string(name))
	}
	return fields{msg}, nil
}

func (f fields) get(name protoreflect.Name) protoreflect.Value {
	return f.msg.Get(f.msg.Descriptor().Fields().ByName(name))
}

func (f fields) int32(name protoreflect.Name) int32 {
	return int32(f.get(name).Int())
}

func (f fields) uint64(name protoreflect.Name) uint64 {
	return f.get(name).Uint()
}

func (f fields) bool(name protoreflect.Name) bool {
	return f.get(name).Bool()
}

func (f fields) float32(name protoreflect.Name) float32 {
	return float32(f.get(name).Float())
}

func (f fields) string(name protoreflect.Name) string {
	return f.get(name).String()
}

func (f fields) bytes(name protoreflect.Name) []byte {
	return f.get(name).Bytes()
}

// each visits the elements of a repeated message field in wire order.
func (f fields) each(name protoreflect.Name, visit func(fields)) {
	list := f.get(name).List()
	for i := 0; i < list.Len(); i++ {
		visit(fields{list.Get(i).Message()})
	}
}
