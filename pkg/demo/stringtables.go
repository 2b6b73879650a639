package demo

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
)

const (
	stNameInstanceBaseline = "instancebaseline"
	stNameUserInfo         = "userinfo"
	stNameModelPreCache    = "modelprecache"

	stringTableCompressedFlag  = 1
	stringTableHistorySize     = 32
	stringTableMaxKeyBits      = 5
	stringTableVarUserDataBits = 14
	stringTableSnappyMagic     = "SNAP"
)

type stringTable struct {
	name              string
	maxEntries        int
	userDataFixedSize bool
	userDataSizeBits  int
	entries           map[int]string
}

// playerInfo is the player_info_t stored in the userinfo table.
type playerInfo struct {
	version      uint64
	xuid         uint64
	name         string
	userID       int
	guid         string
	friendsID    int
	friendsName  string
	isFakePlayer bool
	isHltv       bool
}

// rawPlayerInfo is the big endian wire layout of player_info_t.
type rawPlayerInfo struct {
	Version         uint64
	XUID            uint64
	Name            [128]byte
	UserID          int32
	GUID            [33]byte
	_               [3]byte
	FriendsID       uint32
	FriendsName     [128]byte
	IsFakePlayer    bool
	IsHLTV          bool
	_               [2]byte
	CustomFiles     [4]uint32
	FilesDownloaded uint8
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func parsePlayerInfo(data []byte) (*playerInfo, error) {
	var raw rawPlayerInfo

	err := binary.Read(bytes.NewReader(data), binary.BigEndian, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode player info")
	}

	return &playerInfo{
		version:      raw.Version,
		xuid:         raw.XUID,
		name:         cString(raw.Name[:]),
		userID:       int(raw.UserID),
		guid:         cString(raw.GUID[:]),
		friendsID:    int(raw.FriendsID),
		friendsName:  cString(raw.FriendsName[:]),
		isFakePlayer: raw.IsFakePlayer,
		isHltv:       raw.IsHLTV,
	}, nil
}

// parseStringTables handles the StringTables demo command, a full dump of all tables.
func (p *Parser) parseStringTables() error {
	if err := p.beginChunk(); err != nil {
		return err
	}
	defer p.bitReader.EndChunk()

	tables := int(p.bitReader.ReadSingleByte())
	for i := 0; i < tables; i++ {
		tableName := p.bitReader.ReadString()
		if err := p.parseSingleStringTable(tableName); err != nil {
			return err
		}
	}

	return nil
}

func (p *Parser) parseSingleStringTable(name string) error {
	nStrings := int(p.bitReader.ReadInt(16))
	for i := 0; i < nStrings; i++ {
		entry := p.bitReader.ReadString()

		var userData []byte
		if p.bitReader.ReadBit() {
			userDataSize := int(p.bitReader.ReadInt(16))
			userData = p.bitReader.ReadBytes(userDataSize)
		}

		if err := p.processStringTableEntry(name, i, entry, userData); err != nil {
			return err
		}
	}

	// Client side entries
	if p.bitReader.ReadBit() {
		numStrings := int(p.bitReader.ReadInt(16))
		for i := 0; i < numStrings; i++ {
			p.bitReader.ReadString()

			if p.bitReader.ReadBit() {
				p.bitReader.Skip(int(p.bitReader.ReadInt(16)) << 3)
			}
		}
	}

	return nil
}

func (p *Parser) handleCreateStringTable(msg *netmsg.CreateStringTable) error {
	t := &stringTable{
		name:              msg.Name,
		maxEntries:        int(msg.MaxEntries),
		userDataFixedSize: msg.UserDataFixedSize,
		userDataSizeBits:  int(msg.UserDataSizeBits),
		entries:           make(map[int]string),
	}
	p.stringTables = append(p.stringTables, t)

	data := msg.StringData
	if msg.Flags&stringTableCompressedFlag != 0 {
		var err error

		data, err = decompressStringTable(data)
		if err != nil {
			return errors.Wrapf(err, "failed to decompress string table %q", msg.Name)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"table":   msg.Name,
		"entries": msg.NumEntries,
	}).Debug("created string table")

	return p.parseStringTableData(t, int(msg.NumEntries), data)
}

func (p *Parser) handleUpdateStringTable(msg *netmsg.UpdateStringTable) error {
	id := int(msg.TableID)
	if id < 0 || id >= len(p.stringTables) {
		return errors.Errorf("update for unknown string table %d", id)
	}

	return p.parseStringTableData(p.stringTables[id], int(msg.NumChangedEntries), msg.StringData)
}

// decompressStringTable unpacks string data prefixed with the uncompressed size,
// the compressed size and the SNAP magic.
func decompressStringTable(data []byte) ([]byte, error) {
	const headerSize = 12

	if len(data) < headerSize {
		return nil, errors.New("compressed string table data too short")
	}

	if magic := string(data[8:headerSize]); magic != stringTableSnappyMagic {
		return nil, errors.Errorf("unsupported compression %q", magic)
	}

	decompressed, err := snappy.Decode(nil, data[headerSize:])
	if err != nil {
		return nil, errors.Wrap(err, "snappy")
	}

	if size := binary.LittleEndian.Uint32(data); int(size) != len(decompressed) {
		return nil, errors.Errorf("decompressed %d bytes, expected %d", len(decompressed), size)
	}

	return decompressed, nil
}

func (p *Parser) parseStringTableData(t *stringTable, numEntries int, data []byte) error {
	r := bitread.NewBytesReader(data)
	defer r.Pool()

	if r.ReadBit() {
		return errors.Errorf("string table %q uses dictionary encoding", t.name)
	}

	entryBits := bitread.BitsFor(t.maxEntries) - 1
	if entryBits < 0 {
		entryBits = 0
	}

	history := make([]string, 0, stringTableHistorySize)
	lastEntry := -1

	for i := 0; i < numEntries; i++ {
		entryIndex := lastEntry + 1
		if !r.ReadBit() {
			entryIndex = int(r.ReadInt(entryBits))
		}
		lastEntry = entryIndex

		if entryIndex < 0 || entryIndex >= t.maxEntries {
			return errors.Errorf("string table %q entry %d out of range", t.name, entryIndex)
		}

		var entry string
		if r.ReadBit() {
			if r.ReadBit() {
				// Substring of a recent entry
				idx := int(r.ReadInt(stringTableMaxKeyBits))
				bytesToCopy := int(r.ReadInt(stringTableMaxKeyBits))

				if idx >= len(history) {
					return errors.Errorf("string table %q references history entry %d of %d", t.name, idx, len(history))
				}

				last := history[idx]
				if bytesToCopy > len(last) {
					bytesToCopy = len(last)
				}

				entry = last[:bytesToCopy] + r.ReadString()
			} else {
				entry = r.ReadString()
			}

			t.entries[entryIndex] = entry
		} else {
			entry = t.entries[entryIndex]
		}

		var userData []byte
		if r.ReadBit() {
			if t.userDataFixedSize {
				userData = r.ReadBits(t.userDataSizeBits)
			} else {
				userData = r.ReadBytes(int(r.ReadInt(stringTableVarUserDataBits)))
			}
		}

		if len(history) == stringTableHistorySize {
			history = history[1:]
		}
		history = append(history, entry)

		if err := p.processStringTableEntry(t.name, entryIndex, entry, userData); err != nil {
			return err
		}
	}

	return nil
}

func (p *Parser) processStringTableEntry(table string, index int, entry string, userData []byte) error {
	switch table {
	case stNameUserInfo:
		if len(userData) == 0 {
			return nil
		}

		info, err := parsePlayerInfo(userData)
		if err != nil {
			return err
		}

		// entity ids of players start at 1
		p.rawPlayers[index+1] = info

	case stNameInstanceBaseline:
		if userData == nil {
			return nil
		}

		classID, err := strconv.Atoi(entry)
		if err != nil {
			return errors.Wrapf(err, "invalid instance baseline key %q", entry)
		}

		p.stParser.SetInstanceBaseline(classID, userData)

	case stNameModelPreCache:
		p.modelPreCache[index] = entry
	}

	return nil
}
