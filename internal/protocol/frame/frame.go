package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	HeaderLen     = 3
	MaxPayloadLen = 0xFFFF
	ReadChunkSize = 1024
)

var (
	ErrShortFrame       = errors.New("frame: short frame")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
	ErrInvalidUTF8      = errors.New("frame: payload is not valid utf-8")
	ErrConnectionClosed = errors.New("frame: connection closed")
)

// Instruction is the one-byte wire opcode.
type Instruction uint8

const (
	Unknown    Instruction = 0x00
	Print      Instruction = 0x01
	Load       Instruction = 0x02
	Exception  Instruction = 0x03
	Initialize Instruction = 0x04
	Exit       Instruction = 0x05
)

func (i Instruction) String() string {
	switch i {
	case Unknown:
		return "UNKNOWN"
	case Print:
		return "PRINT"
	case Load:
		return "LOAD"
	case Exception:
		return "EXCEPTION"
	case Initialize:
		return "INITIALIZE"
	case Exit:
		return "EXIT"
	default:
		return fmt.Sprintf("Instruction(0x%02x)", uint8(i))
	}
}

// Known reports whether i is one of the named opcodes.
func (i Instruction) Known() bool {
	return i <= Exit
}

// Message is one decoded wire message.
type Message struct {
	Inst    Instruction
	Payload string
}

// Encode serializes one message. The length field is always present.
func Encode(inst Instruction, payload string) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = byte(inst)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

// Decode parses exactly one message from the front of b and ignores any trailing bytes.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderLen {
		return Message{}, ErrShortFrame
	}
	n := PayloadLen(b)
	if len(b) < HeaderLen+n {
		return Message{}, ErrShortFrame
	}
	payload := b[HeaderLen : HeaderLen+n]
	if !utf8.Valid(payload) {
		return Message{}, ErrInvalidUTF8
	}
	return Message{Inst: Instruction(b[0]), Payload: string(payload)}, nil
}

// PayloadLen reads the big-endian length field of a header. b must hold at least HeaderLen bytes.
func PayloadLen(b []byte) int {
	return int(binary.BigEndian.Uint16(b[1:3]))
}

// TruncatePayload shortens s to at most MaxPayloadLen bytes without splitting a rune.
func TruncatePayload(s string) string {
	if len(s) <= MaxPayloadLen {
		return s
	}
	cut := MaxPayloadLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
