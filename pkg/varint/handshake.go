package varint

import (
	"encoding/binary"
	"errors"
)

// MaxServerAddressLen is the largest serverAddress length field this
// decoder will accept before giving up on the handshake.
const MaxServerAddressLen = 1024

var (
	// ErrFrameMismatch is returned when the bytes actually consumed while
	// decoding the handshake body do not match the packet's declared
	// length prefix.
	ErrFrameMismatch = errors.New("varint: handshake frame length mismatch")
	// ErrBadPacketID is returned when the first packet read in the
	// handshake state is not packet id 0.
	ErrBadPacketID = errors.New("varint: handshake packet id must be 0")
	// ErrAddressTooLong is returned when serverAddressLength exceeds
	// MaxServerAddressLen or is negative.
	ErrAddressTooLong = errors.New("varint: server address length out of range")
)

// Handshake is the decoded subset of the Minecraft handshake packet this
// broker cares about for tenant routing. Fields irrelevant to routing
// (protocolVersion, nextState) are retained only because the frame-length
// check needs to account for the bytes they occupy.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

// DecodeHandshake parses a handshake packet (including its length and
// packet-id prefix) from the start of buf. Decoding is best-effort: a
// non-nil error means the caller should fall back to treating this
// connection as an unrouted PLAYER, not that the connection must be
// dropped.
func DecodeHandshake(buf []byte) (*Handshake, error) {
	packetLength, lenSize, err := ReadFromBytes(buf)
	if err != nil {
		return nil, err
	}
	body := buf[lenSize:]

	pid, n, err := ReadFromBytes(body)
	if err != nil {
		return nil, err
	}
	if pid != 0 {
		return nil, ErrBadPacketID
	}
	consumed := n

	protocolVersion, n, err := ReadFromBytes(body[consumed:])
	if err != nil {
		return nil, err
	}
	consumed += n

	addrLen, n, err := ReadFromBytes(body[consumed:])
	if err != nil {
		return nil, err
	}
	consumed += n
	if addrLen < 0 || int(addrLen) > MaxServerAddressLen {
		return nil, ErrAddressTooLong
	}
	if len(body)-consumed < int(addrLen) {
		return nil, ErrShortBuffer
	}
	addr := string(body[consumed : consumed+int(addrLen)])
	consumed += int(addrLen)

	if len(body)-consumed < 2 {
		return nil, ErrShortBuffer
	}
	port := binary.BigEndian.Uint16(body[consumed : consumed+2])
	consumed += 2

	nextState, n, err := ReadFromBytes(body[consumed:])
	if err != nil {
		return nil, err
	}
	consumed += n

	if int32(consumed) != packetLength {
		return nil, ErrFrameMismatch
	}

	return &Handshake{
		ProtocolVersion: protocolVersion,
		ServerAddress:   addr,
		ServerPort:      port,
		NextState:       nextState,
	}, nil
}

// EncodeHandshake serialises h the way a client would, for round-trip
// testing (`DecodeHandshake(EncodeHandshake(h)).handshake == h`).
func EncodeHandshake(h *Handshake) ([]byte, error) {
	var body []byte
	var err error
	body, err = Append(body, 0) // packet id
	if err != nil {
		return nil, err
	}
	body, err = Append(body, h.ProtocolVersion)
	if err != nil {
		return nil, err
	}
	body, err = Append(body, int32(len(h.ServerAddress)))
	if err != nil {
		return nil, err
	}
	body = append(body, h.ServerAddress...)
	body = append(body, byte(h.ServerPort>>8), byte(h.ServerPort))
	body, err = Append(body, h.NextState)
	if err != nil {
		return nil, err
	}

	out, err := Append(nil, int32(len(body)))
	if err != nil {
		return nil, err
	}
	out = append(out, body...)
	return out, nil
}
