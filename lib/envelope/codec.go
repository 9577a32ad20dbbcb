// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package envelope

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldKind       protowire.Number = 1
	fieldProject    protowire.Number = 2
	fieldInstanceID protowire.Number = 3
	fieldAddress    protowire.Number = 4
	fieldPort       protowire.Number = 5
)

// Marshal validates and encodes the envelope. The result is never larger
// than MaxSize.
func (e Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	bs := make([]byte, 4, 64)
	binary.BigEndian.PutUint32(bs, Magic)

	bs = protowire.AppendTag(bs, fieldKind, protowire.VarintType)
	bs = protowire.AppendVarint(bs, uint64(e.Kind))
	bs = appendString(bs, fieldProject, e.Project)
	bs = appendString(bs, fieldInstanceID, e.InstanceID)
	bs = appendString(bs, fieldAddress, e.Address)
	if e.Port != 0 {
		bs = protowire.AppendTag(bs, fieldPort, protowire.VarintType)
		bs = protowire.AppendVarint(bs, uint64(e.Port))
	}

	if len(bs) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(bs))
	}
	return bs, nil
}

func appendString(bs []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return bs
	}
	bs = protowire.AppendTag(bs, num, protowire.BytesType)
	return protowire.AppendString(bs, s)
}

// Unmarshal decodes and validates a packet.
func Unmarshal(bs []byte) (Envelope, error) {
	var e Envelope
	if len(bs) > MaxSize {
		return e, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(bs))
	}
	if len(bs) < 4 {
		return e, ErrShort
	}
	if magic := binary.BigEndian.Uint32(bs); magic != Magic {
		return e, fmt.Errorf("%w: %08x", ErrBadMagic, magic)
	}
	bs = bs[4:]

	for len(bs) > 0 {
		num, typ, n := protowire.ConsumeTag(bs)
		if n < 0 {
			return e, fmt.Errorf("envelope: tag: %w", protowire.ParseError(n))
		}
		bs = bs[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(bs)
			if n < 0 {
				return e, fmt.Errorf("envelope: kind: %w", protowire.ParseError(n))
			}
			e.Kind = Kind(v)
			bs = bs[n:]

		case num == fieldPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(bs)
			if n < 0 {
				return e, fmt.Errorf("envelope: port: %w", protowire.ParseError(n))
			}
			if v > 65535 {
				return e, fmt.Errorf("%w: port %d", ErrInvalid, v)
			}
			e.Port = int(v)
			bs = bs[n:]

		case (num == fieldProject || num == fieldInstanceID || num == fieldAddress) && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(bs)
			if n < 0 {
				return e, fmt.Errorf("envelope: field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldProject:
				e.Project = v
			case fieldInstanceID:
				e.InstanceID = v
			case fieldAddress:
				e.Address = v
			}
			bs = bs[n:]

		default:
			// Unknown field, or a known one with an unexpected type
			n := protowire.ConsumeFieldValue(num, typ, bs)
			if n < 0 {
				return e, fmt.Errorf("envelope: field %d: %w", num, protowire.ParseError(n))
			}
			bs = bs[n:]
		}
	}

	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
