// Package demo decodes CS:GO demos (.dem files) into typed game events and a
// queryable game state.
//
// Handlers for events from the events package are registered with
// Parser.RegisterEventHandler, the demo is then consumed tick by tick with
// ParseNextTick or as a whole with ParseToEnd.
package demo

import (
	"io"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	dp "github.com/markus-wa/godispatch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
	"github.com/dualitycsgo1/csgodemo/internal/sendtables"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/events"
)

// ParserConfig contains the configuration for creating a new Parser.
type ParserConfig struct {
	// Logger receives debug output about schema parsing and warnings about skipped records.
	// Defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// IgnoreUnknownWeaponModels downgrades ErrUnknownWeaponModel to a ParserWarn event.
	// The weapon keeps the type derived from its server class.
	IgnoreUnknownWeaponModels bool
}

// DefaultParserConfig is the default Parser configuration used by NewParser().
var DefaultParserConfig = ParserConfig{}

// Parser can parse a CS:GO demo.
// Creating a new instance is done via NewParser().
//
// To start off you may use Parser.ParseHeader() to parse the demo header
// (this can be skipped and will be done automatically if necessary).
// Further, Parser.ParseNextTick() and Parser.ParseToEnd() can be used to parse the demo.
//
// Use Parser.RegisterEventHandler() to receive notifications about events.
type Parser struct {
	config ParserConfig
	logger logrus.FieldLogger

	source          io.Reader
	bitReader       *bitread.BitReader
	stParser        *sendtables.Parser
	entities        *sendtables.EntityTable
	eventDispatcher dp.Dispatcher
	handlers        []dp.HandlerIdentifier

	header      *common.DemoHeader
	currentTick int
	ingameTick  int
	// Set by svc_ServerInfo, fallback if the header has no playback time.
	tickInterval float32

	gameState        *GameState
	gameEventDescs   map[int32]*netmsg.GameEventDescriptor
	stringTables     []*stringTable
	modelPreCache    map[int]string
	rawPlayers       map[int]*playerInfo // Maps entity IDs to player info from the userinfo table
	playerBindings   []playerPropertyBinding
	dataTablesParsed bool
	pendingErr       error
	cancelled        atomic.Bool
	closed           bool
}

// NewParser creates a new Parser with the default configuration.
// The demo is read from demofile as it is being parsed.
func NewParser(demofile io.Reader) *Parser {
	return NewParserWithConfig(demofile, DefaultParserConfig)
}

// NewParserWithConfig returns a new Parser with a custom configuration.
func NewParserWithConfig(demofile io.Reader, config ParserConfig) *Parser {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	p := &Parser{
		config:         config,
		logger:         logger,
		source:         demofile,
		bitReader:      bitread.NewLargeBitReader(demofile),
		gameEventDescs: make(map[int32]*netmsg.GameEventDescriptor),
		modelPreCache:  make(map[int]string),
		rawPlayers:     make(map[int]*playerInfo),
	}

	p.stParser = sendtables.NewParser(logger)
	p.entities = sendtables.NewEntityTable(p.stParser)
	p.gameState = newGameState()

	return p
}

// RegisterEventHandler registers a handler for game events.
// The handler must be of type func(<EventType>) where EventType is the kind of event to be handled.
// To catch all events func(any) can be used.
//
// Returns a identifier with which the handler can be removed via UnregisterEventHandler().
func (p *Parser) RegisterEventHandler(handler any) dp.HandlerIdentifier {
	id := p.eventDispatcher.RegisterHandler(handler)
	p.handlers = append(p.handlers, id)

	return id
}

// UnregisterEventHandler removes a game event handler via identifier.
//
// The identifier is returned at registration by RegisterEventHandler().
func (p *Parser) UnregisterEventHandler(identifier dp.HandlerIdentifier) {
	p.eventDispatcher.UnregisterHandler(identifier)

	for i, id := range p.handlers {
		if id == identifier {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			break
		}
	}
}

func (p *Parser) dispatch(event any) {
	p.eventDispatcher.Dispatch(event)
}

func (p *Parser) warn(msg string) {
	p.logger.Warn(msg)
	p.dispatch(events.ParserWarn{Message: msg})
}

// setError records a fatal error raised inside an observer.
// The tick it occurred in fails with it.
func (p *Parser) setError(err error) {
	if p.pendingErr == nil {
		p.pendingErr = err
	}
}

// Header returns the DemoHeader which contains the demo's metadata.
// Only possible after ParseHeader() has been called.
func (p *Parser) Header() common.DemoHeader {
	if p.header == nil {
		return common.DemoHeader{}
	}
	return *p.header
}

// GameState returns the current game-state.
// It contains most of the relevant information about the game such as players, teams, scores, grenades etc.
func (p *Parser) GameState() *GameState {
	return p.gameState
}

// ServerClasses returns the parsed server classes, empty until the data tables have been parsed.
func (p *Parser) ServerClasses() []*sendtables.ServerClass {
	return p.stParser.ServerClasses()
}

// CurrentTick returns the number of demo frames parsed so far.
func (p *Parser) CurrentTick() int {
	return p.currentTick
}

// IngameTick returns the latest actual tick number of the server during the game.
//
// May be negative at the start of a demo.
func (p *Parser) IngameTick() int {
	return p.ingameTick
}

// TickRate returns the tick-rate the server ran on during the game.
//
// The header is the primary source, the server info tick interval the fallback.
// Returns 0 if neither is available.
func (p *Parser) TickRate() float64 {
	if p.header != nil {
		if rate := p.header.TickRate(); rate != 0 {
			return rate
		}
	}

	if p.tickInterval != 0 {
		return 1.0 / float64(p.tickInterval)
	}

	return 0
}

// TickTime returns the time a single tick takes in seconds.
// Returns 0 if TickRate() is 0.
func (p *Parser) TickTime() float64 {
	rate := p.TickRate()
	if rate == 0 {
		return 0
	}
	return 1 / rate
}

// CurrentTime returns the time elapsed since the start of the demo in seconds.
func (p *Parser) CurrentTime() float64 {
	return float64(p.currentTick) * p.TickTime()
}

// Progress returns the parsing progress from 0 to 1.
// Where 0 means nothing has been parsed yet and 1 means the demo has been parsed to the end.
//
// Might not be 100% correct since it's just based on the reported tick count of the header.
func (p *Parser) Progress() float32 {
	if p.header == nil || p.header.PlaybackFrames == 0 {
		return 0
	}

	progress := float32(p.currentTick) / float32(p.header.PlaybackFrames)
	if progress > 1 {
		return 1
	}

	return progress
}

// Cancel stops ParseToEnd() at the next tick boundary.
// It may be called from within event handlers.
func (p *Parser) Cancel() {
	p.cancelled.Store(true)
}

// Close destroys all entities, unregisters all handlers and releases the demo reader.
// The source is closed too if it implements io.Closer.
// Queries on the game state stay possible.
func (p *Parser) Close() error {
	if p.closed {
		return ErrParserClosed
	}
	p.closed = true

	var result *multierror.Error

	for _, id := range p.handlers {
		p.eventDispatcher.UnregisterHandler(id)
	}
	p.handlers = nil

	// entities still alive at this point were never destroyed in the demo
	p.entities.DestroyAll()

	if p.bitReader != nil {
		p.bitReader.Pool()
		p.bitReader = nil
	}

	if closer, ok := p.source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to close demo source"))
		}
	}

	return result.ErrorOrNil()
}
