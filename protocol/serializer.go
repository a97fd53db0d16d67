// File: protocol/serializer.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message serializers used by typed sends and by dispatch layers.

package protocol

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"google.golang.org/protobuf/proto"
)

// Serializer converts typed messages to frame payloads and back.
type Serializer interface {
	Marshal(msg any) ([]byte, error)
	Unmarshal(data []byte, msg any) error
}

// ProtoSerializer handles proto.Message values.
type ProtoSerializer struct {
	MarshalOptions   proto.MarshalOptions
	UnmarshalOptions proto.UnmarshalOptions
}

// Marshal encodes msg, which must be a proto.Message.
func (s ProtoSerializer) Marshal(msg any) ([]byte, error) {
	m, ok := msg.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a proto.Message", ErrUnsupportedType, msg)
	}
	return s.MarshalOptions.Marshal(m)
}

// Unmarshal decodes data into msg, which must be a proto.Message.
func (s ProtoSerializer) Unmarshal(data []byte, msg any) error {
	m, ok := msg.(proto.Message)
	if !ok {
		return fmt.Errorf("%w: %T is not a proto.Message", ErrUnsupportedType, msg)
	}
	return s.UnmarshalOptions.Unmarshal(data, m)
}

// RawSerializer passes []byte and string values through unchanged.
type RawSerializer struct{}

// Marshal accepts []byte and string.
func (RawSerializer) Marshal(msg any) ([]byte, error) {
	switch v := msg.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, msg)
}

// Unmarshal copies data into *[]byte or *string.
func (RawSerializer) Unmarshal(data []byte, msg any) error {
	switch v := msg.(type) {
	case *[]byte:
		*v = append((*v)[:0], data...)
		return nil
	case *string:
		*v = string(data)
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedType, msg)
}

// compressed wraps a Serializer with s2 block compression.
type compressed struct {
	inner Serializer
}

// Compressed returns a Serializer that s2-compresses the output of inner.
func Compressed(inner Serializer) Serializer {
	return compressed{inner: inner}
}

func (c compressed) Marshal(msg any) ([]byte, error) {
	b, err := c.inner.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return s2.Encode(nil, b), nil
}

func (c compressed) Unmarshal(data []byte, msg any) error {
	b, err := s2.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("s2 decode: %w", err)
	}
	return c.inner.Unmarshal(b, msg)
}
