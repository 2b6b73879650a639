package demo

import (
	"io"

	"github.com/pkg/errors"

	"github.com/dualitycsgo1/csgodemo/internal/bitread"
)

var (
	// ErrInvalidFileType signals that the input isn't a supported CS:GO demo.
	// The wrapping error lists every violated header rule.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrUnknownCommand signals a demo frame with an opcode outside 1-9.
	ErrUnknownCommand = errors.New("unknown demo command")

	// ErrUnexpectedEndOfDemo signals that the demo is incomplete / corrupt.
	// These demos may still be useful, check how far the parser got.
	ErrUnexpectedEndOfDemo = errors.New("demo stream ended unexpectedly (may be corrupt or incomplete)")

	// ErrInvalidChunk signals a frame or net message whose length prefix is negative
	// or runs past the enclosing frame.
	ErrInvalidChunk = bitread.ErrInvalidChunk

	// ErrUnknownWeaponModel signals that a weapon whose class is shared by several
	// weapons referenced a model that matches none of them.
	ErrUnknownWeaponModel = errors.New("unknown weapon model")

	// ErrCancelled signals that parsing was cancelled via Parser.Cancel() or the context.
	ErrCancelled = errors.New("parsing was cancelled before it finished")

	// ErrParserClosed signals use of a parser after Close().
	ErrParserClosed = errors.New("parser is closed")
)

// recoverFromUnexpectedEOF converts a reader panic into ErrUnexpectedEndOfDemo.
// The bit reader reports chunk overruns with plain string panics, these are
// corrupt data as well. Other panics are propagated.
func recoverFromUnexpectedEOF(r any) error {
	switch v := r.(type) {
	case nil:
		return nil

	case string:
		return errors.WithMessage(ErrUnexpectedEndOfDemo, v)

	case error:
		if errors.Is(v, io.ErrUnexpectedEOF) || errors.Is(v, io.EOF) {
			return ErrUnexpectedEndOfDemo
		}
	}

	panic(r)
}
