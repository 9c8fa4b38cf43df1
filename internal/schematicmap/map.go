// Package schematicmap persists the identity mapping between caller logical
// ids and the primitive references a CAD document assigns to them.
package schematicmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"schsync/internal/fault"
	"schsync/internal/ir"
	"schsync/internal/store"
)

const KeyPrefix = "schsync_schematic_map_v1:"

type ComponentEntry struct {
	PrimitiveID string `json:"primitiveId" validate:"required"`
	DeviceUUID  string `json:"deviceUuid" validate:"required"`
	LibraryUUID string `json:"libraryUuid" validate:"required"`
}

type NetFlagEntry struct {
	PrimitiveID    string `json:"primitiveId" validate:"required"`
	Identification string `json:"identification" validate:"oneof=Power Ground AnalogGround ProtectGround"`
	Net            string `json:"net" validate:"required"`
}

type NetPortEntry struct {
	PrimitiveID string `json:"primitiveId" validate:"required"`
	Direction   string `json:"direction" validate:"oneof=IN OUT BI"`
	Net         string `json:"net" validate:"required"`
}

type Entry struct {
	PrimitiveID string `json:"primitiveId" validate:"required"`
}

// Map is version 1 of a document's identity mapping.
type Map struct {
	Version     int                       `json:"version" validate:"eq=1"`
	Components  map[string]ComponentEntry `json:"components" validate:"dive"`
	NetFlags    map[string]NetFlagEntry   `json:"netFlags" validate:"dive"`
	NetPorts    map[string]NetPortEntry   `json:"netPorts" validate:"dive"`
	Texts       map[string]Entry          `json:"texts" validate:"dive"`
	Wires       map[string]Entry          `json:"wires" validate:"dive"`
	Connections map[string]Entry          `json:"connections" validate:"dive"`
}

func NewMap() *Map {
	m := &Map{Version: 1}
	m.fill()
	return m
}

func (m *Map) fill() {
	if m.Components == nil {
		m.Components = map[string]ComponentEntry{}
	}
	if m.NetFlags == nil {
		m.NetFlags = map[string]NetFlagEntry{}
	}
	if m.NetPorts == nil {
		m.NetPorts = map[string]NetPortEntry{}
	}
	if m.Texts == nil {
		m.Texts = map[string]Entry{}
	}
	if m.Wires == nil {
		m.Wires = map[string]Entry{}
	}
	if m.Connections == nil {
		m.Connections = map[string]Entry{}
	}
}

// PrimitiveID returns the mapped reference for (kind, id).
func (m *Map) PrimitiveID(kind ir.Kind, id string) (string, bool) {
	switch kind {
	case ir.KindComponent:
		e, ok := m.Components[id]
		return e.PrimitiveID, ok
	case ir.KindNetFlag:
		e, ok := m.NetFlags[id]
		return e.PrimitiveID, ok
	case ir.KindNetPort:
		e, ok := m.NetPorts[id]
		return e.PrimitiveID, ok
	case ir.KindText:
		e, ok := m.Texts[id]
		return e.PrimitiveID, ok
	case ir.KindWire:
		e, ok := m.Wires[id]
		return e.PrimitiveID, ok
	case ir.KindConnection:
		e, ok := m.Connections[id]
		return e.PrimitiveID, ok
	}
	return "", false
}

// Remove drops the entry for (kind, id) if present.
func (m *Map) Remove(kind ir.Kind, id string) {
	switch kind {
	case ir.KindComponent:
		delete(m.Components, id)
	case ir.KindNetFlag:
		delete(m.NetFlags, id)
	case ir.KindNetPort:
		delete(m.NetPorts, id)
	case ir.KindText:
		delete(m.Texts, id)
	case ir.KindWire:
		delete(m.Wires, id)
	case ir.KindConnection:
		delete(m.Connections, id)
	}
}

// SetSimple records a text, wire or connection reference.
func (m *Map) SetSimple(kind ir.Kind, id, primitiveID string) {
	e := Entry{PrimitiveID: primitiveID}
	switch kind {
	case ir.KindText:
		m.Texts[id] = e
	case ir.KindWire:
		m.Wires[id] = e
	case ir.KindConnection:
		m.Connections[id] = e
	}
}

// Refs lists every mapped reference of one kind, ordered by logical id.
func (m *Map) Refs(kind ir.Kind) []string {
	var ids []string
	switch kind {
	case ir.KindComponent:
		ids = sortedKeys(m.Components)
	case ir.KindNetFlag:
		ids = sortedKeys(m.NetFlags)
	case ir.KindNetPort:
		ids = sortedKeys(m.NetPorts)
	case ir.KindText:
		ids = sortedKeys(m.Texts)
	case ir.KindWire:
		ids = sortedKeys(m.Wires)
	case ir.KindConnection:
		ids = sortedKeys(m.Connections)
	}
	refs := make([]string, 0, len(ids))
	for _, id := range ids {
		ref, _ := m.PrimitiveID(kind, id)
		refs = append(refs, ref)
	}
	return refs
}

func (m *Map) Len() int {
	return len(m.Components) + len(m.NetFlags) + len(m.NetPorts) + len(m.Texts) + len(m.Wires) + len(m.Connections)
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var validate = validator.New()

// Decode parses a stored mapping. Missing collections default to empty.
func Decode(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.fill()
	if err := validate.Struct(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Store loads and saves mappings through a KV backend.
type Store struct {
	kv  store.KV
	log *slog.Logger
}

func NewStore(kv store.KV, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{kv: kv, log: log}
}

func Key(documentID string) string {
	return KeyPrefix + documentID
}

// Load returns the stored mapping. Absent or corrupt mappings yield an empty
// map; a failing backend is a STORAGE_READ_FAILED fault, since starting empty
// would orphan every primitive the stored mapping still points at.
func (s *Store) Load(ctx context.Context, documentID string) (*Map, error) {
	raw, ok, err := s.kv.Get(ctx, Key(documentID))
	if err != nil {
		return nil, fault.Wrap(fault.StorageReadFailed, err, "Failed to load schematic map")
	}
	if !ok {
		return NewMap(), nil
	}
	m, err := Decode(raw)
	if err != nil {
		s.log.Warn("stored mapping is invalid, starting empty", "document", documentID, "error", err)
		return NewMap(), nil
	}
	return m, nil
}

func (s *Store) Save(ctx context.Context, documentID string, m *Map) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fault.Wrap(fault.StorageWriteFailed, err, "Failed to persist schematic map")
	}
	if err := s.kv.Set(ctx, Key(documentID), data); err != nil {
		return fault.Wrap(fault.StorageWriteFailed, err, "Failed to persist schematic map")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	if err := s.kv.Delete(ctx, Key(documentID)); err != nil {
		return fmt.Errorf("delete mapping %s: %w", documentID, err)
	}
	return nil
}

// Documents lists the ids of every document with a stored mapping, sorted.
func (s *Store) Documents(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, KeyPrefix))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}
