package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	stateFormatVersionCurrent = 1
	maxFieldLength            = 255
)

// ErrStateCorrupt is returned by Decode for blobs it cannot interpret.
var ErrStateCorrupt = errors.New("session state corrupt")

// Encode writes s in the compact binary layout:
//
//	version | login phase | login account | login destination |
//	recovery phase | recovery account | recovery destination | updated at
//
// Strings are prefixed with a one-byte length.
func Encode(s State) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64)

	buf.WriteByte(stateFormatVersionCurrent)

	buf.WriteByte(byte(s.Login.Phase))
	if err := writeField(&buf, s.Login.AccountID); err != nil {
		return nil, err
	}
	if err := writeField(&buf, s.Login.Destination); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(s.Recovery.Phase))
	if err := writeField(&buf, s.Recovery.AccountID); err != nil {
		return nil, err
	}
	if err := writeField(&buf, s.Recovery.Destination); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.UpdatedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (State, error) {
	var s State
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != stateFormatVersionCurrent {
		return State{}, ErrStateCorrupt
	}

	loginPhase, err := r.ReadByte()
	if err != nil || LoginPhase(loginPhase) > LoginAuthenticated {
		return State{}, ErrStateCorrupt
	}
	s.Login.Phase = LoginPhase(loginPhase)
	if s.Login.AccountID, err = readField(r); err != nil {
		return State{}, err
	}
	if s.Login.Destination, err = readField(r); err != nil {
		return State{}, err
	}

	recoveryPhase, err := r.ReadByte()
	if err != nil || RecoveryPhase(recoveryPhase) > RecoveryCodeVerified {
		return State{}, ErrStateCorrupt
	}
	s.Recovery.Phase = RecoveryPhase(recoveryPhase)
	if s.Recovery.AccountID, err = readField(r); err != nil {
		return State{}, err
	}
	if s.Recovery.Destination, err = readField(r); err != nil {
		return State{}, err
	}

	if err := binary.Read(r, binary.BigEndian, &s.UpdatedAt); err != nil {
		return State{}, ErrStateCorrupt
	}
	if r.Len() != 0 {
		return State{}, ErrStateCorrupt
	}

	return s, nil
}

func writeField(buf *bytes.Buffer, v string) error {
	if len(v) > maxFieldLength {
		return errors.New("session field too long")
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readField(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrStateCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrStateCorrupt
	}
	return string(b), nil
}
