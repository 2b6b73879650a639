// Package netmsg decodes the protobuf encoded CS:GO net messages embedded in
// demo packets. Only the messages the decoder consumes are modelled, every
// other field or message is skipped by its wire length.
package netmsg

// Message ids (NET_Messages / SVC_Messages).
const (
	NetNOP                = 0
	NetDisconnect         = 1
	NetTick               = 4
	NetStringCmd          = 5
	NetSetConVar          = 6
	NetSignonState        = 7
	SvcServerInfo         = 8
	SvcSendTable          = 9
	SvcClassInfo          = 10
	SvcCreateStringTable  = 12
	SvcUpdateStringTable  = 13
	SvcVoiceInit          = 14
	SvcVoiceData          = 15
	SvcPrint              = 16
	SvcUserMessage        = 23
	SvcGameEvent          = 25
	SvcPacketEntities     = 26
	SvcTempEntities       = 27
	SvcGameEventList      = 30
	SvcEncryptedData      = 35
	NetPlayerAvatarData   = 100
)

// Game event key types.
const (
	KeyTypeString  = 1
	KeyTypeFloat   = 2
	KeyTypeLong    = 3
	KeyTypeShort   = 4
	KeyTypeByte    = 5
	KeyTypeBool    = 6
	KeyTypeUint64  = 7
	KeyTypeWString = 8
)

// SendProp is one property declaration of a send table (sendprop_t).
type SendProp struct {
	Type        int32
	VarName     string
	Flags       int32
	Priority    int32
	DtName      string
	NumElements int32
	LowValue    float32
	HighValue   float32
	NumBits     int32
}

// SendTable is CSVCMsg_SendTable.
type SendTable struct {
	IsEnd        bool
	NetTableName string
	NeedsDecoder bool
	Props        []SendProp
}

// UnmarshalSendTable decodes a CSVCMsg_SendTable body.
func UnmarshalSendTable(b []byte) (*SendTable, error) {
	f, err := unmarshal("CSVCMsg_SendTable", b)
	if err != nil {
		return nil, err
	}

	st := &SendTable{
		IsEnd:        f.bool("is_end"),
		NetTableName: f.string("net_table_name"),
		NeedsDecoder: f.bool("needs_decoder"),
	}

	f.each("props", func(p fields) {
		st.Props = append(st.Props, SendProp{
			Type:        p.int32("type"),
			VarName:     p.string("var_name"),
			Flags:       p.int32("flags"),
			Priority:    p.int32("priority"),
			DtName:      p.string("dt_name"),
			NumElements: p.int32("num_elements"),
			LowValue:    p.float32("low_value"),
			HighValue:   p.float32("high_value"),
			NumBits:     p.int32("num_bits"),
		})
	})

	return st, nil
}

// ServerInfo is the subset of CSVCMsg_ServerInfo the decoder uses.
type ServerInfo struct {
	Protocol     int32
	MaxClients   int32
	MaxClasses   int32
	TickInterval float32
	GameDir      string
	MapName      string
	HostName     string
}

// UnmarshalServerInfo decodes a CSVCMsg_ServerInfo body.
func UnmarshalServerInfo(b []byte) (*ServerInfo, error) {
	f, err := unmarshal("CSVCMsg_ServerInfo", b)
	if err != nil {
		return nil, err
	}

	return &ServerInfo{
		Protocol:     f.int32("protocol"),
		MaxClients:   f.int32("max_clients"),
		MaxClasses:   f.int32("max_classes"),
		TickInterval: f.float32("tick_interval"),
		GameDir:      f.string("game_dir"),
		MapName:      f.string("map_name"),
		HostName:     f.string("host_name"),
	}, nil
}

// CreateStringTable is CSVCMsg_CreateStringTable.
type CreateStringTable struct {
	Name              string
	MaxEntries        int32
	NumEntries        int32
	UserDataFixedSize bool
	UserDataSize      int32
	UserDataSizeBits  int32
	Flags             int32
	StringData        []byte
}

// UnmarshalCreateStringTable decodes a CSVCMsg_CreateStringTable body.
func UnmarshalCreateStringTable(b []byte) (*CreateStringTable, error) {
	f, err := unmarshal("CSVCMsg_CreateStringTable", b)
	if err != nil {
		return nil, err
	}

	return &CreateStringTable{
		Name:              f.string("name"),
		MaxEntries:        f.int32("max_entries"),
		NumEntries:        f.int32("num_entries"),
		UserDataFixedSize: f.bool("user_data_fixed_size"),
		UserDataSize:      f.int32("user_data_size"),
		UserDataSizeBits:  f.int32("user_data_size_bits"),
		Flags:             f.int32("flags"),
		StringData:        f.bytes("string_data"),
	}, nil
}

// UpdateStringTable is CSVCMsg_UpdateStringTable.
type UpdateStringTable struct {
	TableID           int32
	NumChangedEntries int32
	StringData        []byte
}

// UnmarshalUpdateStringTable decodes a CSVCMsg_UpdateStringTable body.
func UnmarshalUpdateStringTable(b []byte) (*UpdateStringTable, error) {
	f, err := unmarshal("CSVCMsg_UpdateStringTable", b)
	if err != nil {
		return nil, err
	}

	return &UpdateStringTable{
		TableID:           f.int32("table_id"),
		NumChangedEntries: f.int32("num_changed_entries"),
		StringData:        f.bytes("string_data"),
	}, nil
}

// PacketEntities is CSVCMsg_PacketEntities.
type PacketEntities struct {
	MaxEntries     int32
	UpdatedEntries int32
	IsDelta        bool
	UpdateBaseline bool
	Baseline       int32
	DeltaFrom      int32
	EntityData     []byte
}

// UnmarshalPacketEntities decodes a CSVCMsg_PacketEntities body.
func UnmarshalPacketEntities(b []byte) (*PacketEntities, error) {
	f, err := unmarshal("CSVCMsg_PacketEntities", b)
	if err != nil {
		return nil, err
	}

	return &PacketEntities{
		MaxEntries:     f.int32("max_entries"),
		UpdatedEntries: f.int32("updated_entries"),
		IsDelta:        f.bool("is_delta"),
		UpdateBaseline: f.bool("update_baseline"),
		Baseline:       f.int32("baseline"),
		DeltaFrom:      f.int32("delta_from"),
		EntityData:     f.bytes("entity_data"),
	}, nil
}

// GameEventKeyDescriptor describes one key of a game event.
type GameEventKeyDescriptor struct {
	Type int32
	Name string
}

// GameEventDescriptor is CSVCMsg_GameEventList.descriptor_t.
type GameEventDescriptor struct {
	EventID int32
	Name    string
	Keys    []GameEventKeyDescriptor
}

// GameEventList is CSVCMsg_GameEventList.
type GameEventList struct {
	Descriptors []GameEventDescriptor
}

// UnmarshalGameEventList decodes a CSVCMsg_GameEventList body.
func UnmarshalGameEventList(b []byte) (*GameEventList, error) {
	f, err := unmarshal("CSVCMsg_GameEventList", b)
	if err != nil {
		return nil, err
	}

	gel := new(GameEventList)

	f.each("descriptors", func(d fields) {
		desc := GameEventDescriptor{
			EventID: d.int32("eventid"),
			Name:    d.string("name"),
		}

		d.each("keys", func(k fields) {
			desc.Keys = append(desc.Keys, GameEventKeyDescriptor{
				Type: k.int32("type"),
				Name: k.string("name"),
			})
		})

		gel.Descriptors = append(gel.Descriptors, desc)
	})

	return gel, nil
}

// GameEventKey is one value of a game event occurrence.
type GameEventKey struct {
	Type       int32
	ValString  string
	ValFloat   float32
	ValLong    int32
	ValShort   int32
	ValByte    int32
	ValBool    bool
	ValUint64  uint64
	ValWString []byte
}

// GameEvent is CSVCMsg_GameEvent.
type GameEvent struct {
	EventName string
	EventID   int32
	Keys      []GameEventKey
}

// UnmarshalGameEvent decodes a CSVCMsg_GameEvent body.
func UnmarshalGameEvent(b []byte) (*GameEvent, error) {
	f, err := unmarshal("CSVCMsg_GameEvent", b)
	if err != nil {
		return nil, err
	}

	ge := &GameEvent{
		EventName: f.string("event_name"),
		EventID:   f.int32("eventid"),
	}

	f.each("keys", func(k fields) {
		ge.Keys = append(ge.Keys, GameEventKey{
			Type:       k.int32("type"),
			ValString:  k.string("val_string"),
			ValFloat:   k.float32("val_float"),
			ValLong:    k.int32("val_long"),
			ValShort:   k.int32("val_short"),
			ValByte:    k.int32("val_byte"),
			ValBool:    k.bool("val_bool"),
			ValUint64:  k.uint64("val_uint64"),
			ValWString: k.bytes("val_wstring"),
		})
	})

	return ge, nil
}
