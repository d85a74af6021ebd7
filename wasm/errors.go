package wasm

import (
	"errors"

	"github.com/konkitoman/wasm-parse/wasm/internal/binary"
)

// Decode error taxonomy. Every failure returned by ParseModule wraps exactly
// one of these sentinels, with the byte offset (and where relevant the
// offending byte) attached via the error message. Use errors.Is to classify.
var (
	// ErrMalformedInteger reports an overlong or overwide LEB128 encoding.
	ErrMalformedInteger = binary.ErrMalformedInteger

	// ErrUnexpectedEnd reports a read past the end of the input.
	ErrUnexpectedEnd = binary.ErrUnexpectedEnd

	// ErrInvalidUTF8 reports a name that is not valid UTF-8.
	ErrInvalidUTF8 = binary.ErrInvalidUTF8

	// ErrInvalidMagic reports a preamble that does not start with "\0asm".
	ErrInvalidMagic = errors.New("invalid magic number")

	// ErrInvalidVersion reports an unsupported binary format version.
	ErrInvalidVersion = errors.New("unsupported version")

	// ErrInvalidDiscriminant reports an unrecognized one-byte discriminant
	// (value type, limits flag, import/export kind, element or data form).
	ErrInvalidDiscriminant = errors.New("invalid discriminant")

	// ErrInvalidOpcode reports an instruction byte or sub-opcode with no
	// defined variant.
	ErrInvalidOpcode = errors.New("invalid opcode")

	// ErrSectionSizeMismatch reports a section (or code entry) whose
	// declared length disagrees with its decoded payload.
	ErrSectionSizeMismatch = errors.New("section size mismatch")

	// ErrDepthExceeded reports block nesting deeper than the configured
	// recursion limit.
	ErrDepthExceeded = errors.New("block nesting depth exceeded")
)
