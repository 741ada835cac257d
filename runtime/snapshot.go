package runtime

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
)

// Snapshot format: a small self-describing binary layout so fitted
// parameters survive process restarts.
//
//	magic   uint32  "MRGP"
//	version uint16
//	count   uint16
//	entries count times:
//	  nameLen    uint16
//	  name       nameLen bytes
//	  constraint uint8
//	  value      uint64 (IEEE 754 bits, unconstrained space)
const (
	snapshotMagic   = uint32(0x4D524750) // "MRGP"
	snapshotVersion = uint16(1)
)

// Serialize writes the store to a byte slice in the binary snapshot format.
func (s *Store) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, snapshotMagic); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, snapshotVersion); err != nil {
		return nil, err
	}
	if len(s.params) > math.MaxUint16 {
		return nil, fmt.Errorf("runtime: %d parameters exceed snapshot capacity", len(s.params))
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(s.params))); err != nil {
		return nil, err
	}

	// Sorted order keeps snapshots byte-stable across runs.
	for _, name := range s.Names() {
		p := s.params[name]
		if len(name) > math.MaxUint16 {
			return nil, fmt.Errorf("runtime: parameter name %q too long", name)
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint16(len(name))); err != nil {
			return nil, err
		}
		buf.WriteString(name)
		if err := binary.Write(&buf, binary.LittleEndian, uint8(p.constraint)); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, math.Float64bits(p.value)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Deserialize reads a snapshot back into a fresh Store.
func Deserialize(data []byte) (*Store, error) {
	buf := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(buf, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("runtime: invalid snapshot magic: %x", magic)
	}

	var version uint16
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("runtime: unsupported snapshot version: %d", version)
	}

	var count uint16
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	store := NewStore()
	for i := 0; i < int(count); i++ {
		var nameLen uint16
		if err := binary.Read(buf, binary.LittleEndian, &nameLen); err != nil {
			return nil, err
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(buf, nameBytes); err != nil {
			return nil, err
		}
		var constraint uint8
		if err := binary.Read(buf, binary.LittleEndian, &constraint); err != nil {
			return nil, err
		}
		var bits uint64
		if err := binary.Read(buf, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}

		c := Constraint(constraint)
		if !c.valid() {
			return nil, fmt.Errorf("runtime: snapshot entry %d has unknown constraint %d", i, constraint)
		}
		name := string(nameBytes)
		if _, dup := store.params[name]; dup {
			return nil, fmt.Errorf("runtime: snapshot has duplicate parameter %q", name)
		}
		store.params[name] = &param{value: math.Float64frombits(bits), constraint: c}
	}
	return store, nil
}

// snapshotEntry mirrors param for gob, which needs exported fields.
type snapshotEntry struct {
	Name       string
	Value      float64
	Constraint uint8
}

// SerializeGob writes the store using gob encoding (fallback).
func (s *Store) SerializeGob() ([]byte, error) {
	entries := make([]snapshotEntry, 0, len(s.params))
	for _, name := range s.Names() {
		p := s.params[name]
		entries = append(entries, snapshotEntry{Name: name, Value: p.value, Constraint: uint8(p.constraint)})
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeGob reads a gob-encoded snapshot (fallback).
func DeserializeGob(data []byte) (*Store, error) {
	var entries []snapshotEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return nil, err
	}
	store := NewStore()
	for _, e := range entries {
		c := Constraint(e.Constraint)
		if !c.valid() {
			return nil, fmt.Errorf("runtime: gob snapshot has unknown constraint %d", e.Constraint)
		}
		if _, dup := store.params[e.Name]; dup {
			return nil, fmt.Errorf("runtime: gob snapshot has duplicate parameter %q", e.Name)
		}
		store.params[e.Name] = &param{value: e.Value, constraint: c}
	}
	return store, nil
}

// SaveFile writes the binary snapshot to path.
func (s *Store) SaveFile(path string) error {
	data, err := s.Serialize()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFile reads a binary snapshot from path.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}
