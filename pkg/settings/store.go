// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// DefaultPath is the settings file used when none is configured.
const DefaultPath = "printer_settings.json"

// codec encodes the settings blob. JSON by default, CBOR for *.cbor paths.
type codec interface {
	marshal(v Settings) ([]byte, error)
	unmarshal(data []byte, v *Settings) error
	keys(data []byte) ([]string, error)
}

type jsonCodec struct{}

func (jsonCodec) marshal(v Settings) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) unmarshal(data []byte, v *Settings) error {
	err := json.Unmarshal(data, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return invalid(typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
	}
	return err
}

func (jsonCodec) keys(data []byte) ([]string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

type cborCodec struct {
	enc cbor.EncMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("settings: cbor encoder: %v", err))
	}
	return cborCodec{enc: enc}
}

func (c cborCodec) marshal(v Settings) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (cborCodec) unmarshal(data []byte, v *Settings) error {
	err := cbor.Unmarshal(data, v)
	var typeErr *cbor.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return invalid(typeErr.StructFieldName, "expected %s, got %s", typeErr.GoType, typeErr.CBORType)
	}
	return err
}

func (cborCodec) keys(data []byte) ([]string, error) {
	var m map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

// Store persists Settings to a single file.
type Store struct {
	path  string
	codec codec
}

// NewStore returns a store for path. The encoding follows the extension.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	var c codec = jsonCodec{}
	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		c = newCBORCodec()
	}
	return &Store{path: path, codec: c}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the blob and merges it over Default. A missing file yields the
// defaults. Unknown keys are ignored and returned sorted.
func (s *Store) Load() (Settings, []string, error) {
	out := Default()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil, nil
	}
	if err != nil {
		return out, nil, fmt.Errorf("failed to read settings %s: %w", s.path, err)
	}

	present, err := s.codec.keys(data)
	if err != nil {
		return out, nil, fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}
	known := make(map[string]bool)
	for _, k := range Keys() {
		known[k] = true
	}
	var unknown []string
	for _, k := range present {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)

	if err := s.codec.unmarshal(data, &out); err != nil {
		return Default(), unknown, fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}
	if err := out.Validate(); err != nil {
		return Default(), unknown, fmt.Errorf("settings %s: %w", s.path, err)
	}
	return out, unknown, nil
}

// Save writes v atomically via a temporary file in the same directory.
func (s *Store) Save(v Settings) error {
	data, err := s.codec.marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}
