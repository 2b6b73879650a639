package demo

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/events"
)

const maxOsPath = 260

// Skipped in every Signon/Packet frame: split screen command info and two sequence numbers.
const (
	commandInfoBytes    = 152
	sequenceNumberBytes = 8
)

type demoCommand byte

const (
	dcSignon         demoCommand = 1
	dcPacket         demoCommand = 2
	dcSynctick       demoCommand = 3
	dcConsoleCommand demoCommand = 4
	dcUserCommand    demoCommand = 5
	dcDataTables     demoCommand = 6
	dcStop           demoCommand = 7
	dcCustomData     demoCommand = 8
	dcStringTables   demoCommand = 9
)

// ParseHeader attempts to parse the header of the demo and returns it.
// If not done manually this will be called by Parser.ParseNextTick() or Parser.ParseToEnd().
//
// Returns ErrInvalidFileType if the filestamp (first 8 bytes) doesn't match HL2DEMO,
// the protocol isn't 4 or the game directory isn't csgo.
func (p *Parser) ParseHeader() (h common.DemoHeader, err error) {
	if p.closed {
		return h, ErrParserClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = recoverFromUnexpectedEOF(r)
		}
	}()

	h.Filestamp = p.readFixedString(8)
	h.Protocol = p.bitReader.ReadSignedInt(32)
	h.NetworkProtocol = p.bitReader.ReadSignedInt(32)
	h.ServerName = p.readFixedString(maxOsPath)
	h.ClientName = p.readFixedString(maxOsPath)
	h.MapName = p.readFixedString(maxOsPath)
	h.GameDirectory = p.readFixedString(maxOsPath)
	h.PlaybackTime = p.bitReader.ReadFloat()
	h.PlaybackTicks = p.bitReader.ReadSignedInt(32)
	h.PlaybackFrames = p.bitReader.ReadSignedInt(32)
	h.SignonLength = p.bitReader.ReadSignedInt(32)

	if violations := h.Validate(); violations != nil {
		return h, errors.Wrap(ErrInvalidFileType, violations.Error())
	}

	p.header = &h
	p.gameState.mapName = h.MapName

	p.logger.WithFields(logrus.Fields{
		"map":      h.MapName,
		"server":   h.ServerName,
		"frames":   h.PlaybackFrames,
		"tickRate": h.TickRate(),
	}).Debug("parsed demo header")

	return h, nil
}

func (p *Parser) readFixedString(n int) string {
	b := p.bitReader.ReadBytes(n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// ParseToEnd attempts to parse the demo until the end.
// Aborts and returns ErrCancelled if Cancel() is called or ctx is done before the end.
//
// May return ErrUnexpectedEndOfDemo for incomplete / corrupt demos.
func (p *Parser) ParseToEnd(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return errors.WithMessage(ErrCancelled, ctx.Err().Error())
		default:
		}

		if p.cancelled.Load() {
			return ErrCancelled
		}

		more, err := p.ParseNextTick()
		if err != nil {
			return err
		}

		if !more {
			return nil
		}
	}
}

// ParseNextTick attempts to parse the next tick.
// Returns true unless the demo command 'stop' or an error was encountered.
//
// May return ErrUnexpectedEndOfDemo for incomplete / corrupt demos.
func (p *Parser) ParseNextTick() (more bool, err error) {
	if p.closed {
		return false, ErrParserClosed
	}

	if p.header == nil {
		if _, err = p.ParseHeader(); err != nil {
			return false, err
		}
	}

	defer func() {
		if r := recover(); r != nil {
			more = false
			err = recoverFromUnexpectedEOF(r)
		}
	}()

	more, err = p.parseFrame()
	if err == nil {
		err = p.takePendingError()
	}

	if err != nil {
		return false, err
	}

	if more {
		p.currentTick++
		p.afterTick()
		p.dispatch(events.TickDone{})

		// observers may fail inside TickDone handlers too
		if err = p.takePendingError(); err != nil {
			return false, err
		}
	}

	return more, nil
}

func (p *Parser) takePendingError() error {
	err := p.pendingErr
	p.pendingErr = nil
	return err
}

func (p *Parser) parseFrame() (bool, error) {
	cmd := demoCommand(p.bitReader.ReadSingleByte())

	p.ingameTick = p.bitReader.ReadSignedInt(32)
	p.gameState.ingameTick = p.ingameTick

	// Skip player slot
	p.bitReader.Skip(8)

	switch cmd {
	case dcSynctick:
		// Ignore

	case dcStop:
		return false, nil

	case dcConsoleCommand:
		return true, p.skipChunk()

	case dcDataTables:
		return true, p.parseDataTables()

	case dcStringTables:
		return true, p.parseStringTables()

	case dcUserCommand:
		p.bitReader.Skip(32)
		return true, p.skipChunk()

	case dcSignon, dcPacket:
		return true, p.parsePacket()

	case dcCustomData:
		p.bitReader.Skip(32)
		return true, p.skipChunk()

	default:
		return false, errors.Wrapf(ErrUnknownCommand, "opcode %d at tick %d", cmd, p.currentTick)
	}

	return true, nil
}

// beginChunk reads a length prefix and opens a chunk of that many bytes.
func (p *Parser) beginChunk() error {
	n := p.bitReader.ReadSignedInt(32)

	return errors.Wrapf(p.bitReader.BeginByteChunk(n), "frame at tick %d", p.currentTick)
}

func (p *Parser) skipChunk() error {
	if err := p.beginChunk(); err != nil {
		return err
	}

	p.bitReader.EndChunk()

	return nil
}

func (p *Parser) parseDataTables() error {
	if p.dataTablesParsed {
		if err := p.skipChunk(); err != nil {
			return err
		}

		p.warn("received data tables twice, ignoring the second set")

		return nil
	}

	if err := p.beginChunk(); err != nil {
		return err
	}

	err := p.stParser.ParsePacket(p.bitReader)

	p.bitReader.EndChunk()

	if err != nil {
		return errors.Wrap(err, "failed to parse data tables")
	}

	p.dataTablesParsed = true
	p.bindEntities()
	p.dispatch(events.DataTablesParsed{})

	return nil
}

func (p *Parser) parsePacket() error {
	p.bitReader.Skip((commandInfoBytes + sequenceNumberBytes) << 3)

	if err := p.beginChunk(); err != nil {
		return err
	}
	defer p.bitReader.EndChunk()

	for !p.bitReader.ChunkFinished() {
		cmd := int(p.bitReader.ReadVarInt32())
		size := int(p.bitReader.ReadVarInt32())

		if err := p.bitReader.BeginByteChunk(size); err != nil {
			return errors.Wrapf(err, "net message %d at tick %d", cmd, p.currentTick)
		}

		err := p.handleNetMessage(cmd, size)

		p.bitReader.EndChunk()

		if err != nil {
			return err
		}

		// fatal errors raised by observers stop the packet immediately
		if p.pendingErr != nil {
			return nil
		}
	}

	return nil
}

// handleNetMessage decodes the messages the decoder needs, all others are skipped by EndChunk.
func (p *Parser) handleNetMessage(cmd, size int) error {
	switch cmd {
	case netmsg.SvcServerInfo:
		msg, err := netmsg.UnmarshalServerInfo(p.bitReader.ReadBytes(size))
		if err != nil {
			return err
		}
		p.handleServerInfo(msg)

	case netmsg.SvcCreateStringTable:
		msg, err := netmsg.UnmarshalCreateStringTable(p.bitReader.ReadBytes(size))
		if err != nil {
			return err
		}
		return p.handleCreateStringTable(msg)

	case netmsg.SvcUpdateStringTable:
		msg, err := netmsg.UnmarshalUpdateStringTable(p.bitReader.ReadBytes(size))
		if err != nil {
			return err
		}
		return p.handleUpdateStringTable(msg)

	case netmsg.SvcGameEventList:
		msg, err := netmsg.UnmarshalGameEventList(p.bitReader.ReadBytes(size))
		if err != nil {
			return err
		}
		p.handleGameEventList(msg)

	case netmsg.SvcGameEvent:
		msg, err := netmsg.UnmarshalGameEvent(p.bitReader.ReadBytes(size))
		if err != nil {
			return err
		}
		p.handleGameEvent(msg)

	case netmsg.SvcPacketEntities:
		msg, err := netmsg.UnmarshalPacketEntities(p.bitReader.ReadBytes(size))
		if err != nil {
			return err
		}
		return errors.Wrap(p.entities.HandlePacketEntities(msg), "failed to handle packet entities")
	}

	return nil
}

func (p *Parser) handleServerInfo(msg *netmsg.ServerInfo) {
	p.tickInterval = msg.TickInterval

	if msg.MapName != "" {
		p.gameState.mapName = msg.MapName
	}

	p.logger.WithFields(logrus.Fields{
		"map":          msg.MapName,
		"tickInterval": msg.TickInterval,
		"maxClasses":   msg.MaxClasses,
	}).Debug("received server info")
}
