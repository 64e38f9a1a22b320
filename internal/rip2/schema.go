package rip2

import (
	"fmt"
	"os"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// rangeImageFullName is the message the decoder looks up in the loaded
// schema.
const rangeImageFullName = "waterlinked.RangeImage"

// SchemaState tracks the lifecycle of the externally provided protocol
// schema.
type SchemaState int

const (
	SchemaUnloaded SchemaState = iota
	SchemaLoaded
	SchemaLoadFailed
)

func (s SchemaState) String() string {
	switch s {
	case SchemaUnloaded:
		return "unloaded"
	case SchemaLoaded:
		return "loaded"
	case SchemaLoadFailed:
		return "load-failed"
	default:
		return fmt.Sprintf("schema-state(%d)", int(s))
	}
}

// SchemaProvider loads the RIP2 message schema (a serialized protobuf
// FileDescriptorSet) lazily on first use and caches the outcome, success
// or failure, for the process lifetime. Decoding is disabled while the
// schema is unavailable; the rest of the system keeps running.
type SchemaProvider struct {
	path string

	mu      sync.Mutex
	state   SchemaState
	msgType protoreflect.MessageType
	loadErr error
}

// NewSchemaProvider creates a provider for the descriptor set at path.
// Nothing is read until the first decode asks for the message type.
func NewSchemaProvider(path string) *SchemaProvider {
	return &SchemaProvider{path: path}
}

// State returns the current schema lifecycle state.
func (p *SchemaProvider) State() SchemaState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Reload discards a cached load failure (or a loaded schema) so the next
// decode attempts the load again. Used when an operator installs the
// schema file at runtime.
func (p *SchemaProvider) Reload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = SchemaUnloaded
	p.msgType = nil
	p.loadErr = nil
}

// RangeImageType returns the dynamic message type for the RangeImage
// message, loading the schema on first call. A failed load is cached and
// reported as a schema-unavailable decode error until Reload is called.
func (p *SchemaProvider) RangeImageType() (protoreflect.MessageType, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case SchemaLoaded:
		return p.msgType, nil
	case SchemaLoadFailed:
		return nil, &DecodeError{Kind: KindSchemaUnavailable, Msg: "schema load previously failed", Err: p.loadErr}
	}

	mt, err := loadRangeImageType(p.path)
	if err != nil {
		p.state = SchemaLoadFailed
		p.loadErr = err
		return nil, &DecodeError{Kind: KindSchemaUnavailable, Msg: "schema load failed", Err: err}
	}
	p.state = SchemaLoaded
	p.msgType = mt
	return mt, nil
}

func loadRangeImageType(path string) (protoreflect.MessageType, error) {
	if path == "" {
		return nil, fmt.Errorf("no schema path configured")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(raw, &fds); err != nil {
		return nil, fmt.Errorf("parse descriptor set: %w", err)
	}
	files, err := protodesc.NewFiles(&fds)
	if err != nil {
		return nil, fmt.Errorf("build descriptors: %w", err)
	}
	desc, err := files.FindDescriptorByName(rangeImageFullName)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", rangeImageFullName, err)
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", rangeImageFullName)
	}
	return dynamicpb.NewMessageType(md), nil
}
