// icucohort: ICU Cohort Selection and Outcome Modeling
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package blob

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang/snappy"

	"icucohort/table"
)

// ErrKind is returned when a helper is used with a key of another kind.
var ErrKind = errors.New("wrong kind of key")

func checkKind(key string, want Kind) error {
	if got := KindOf(key); got != want {
		return fmt.Errorf("%w: %q holds a %v, not a %v", ErrKind, key, got, want)
	}
	return nil
}

// PutTable stores a table as CSV with an unnamed index column.
func PutTable(ctx context.Context, s Store, key string, t *table.Table) error {
	if err := checkKind(key, KindTable); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf, t, true); err != nil {
		return err
	}
	return s.Put(ctx, key, buf.Bytes())
}

// GetTable loads a table stored by PutTable.
func GetTable(ctx context.Context, s Store, key string) (*table.Table, error) {
	if err := checkKind(key, KindTable); err != nil {
		return nil, err
	}
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	t, err := table.ReadCSV(bytes.NewReader(data), true)
	if err != nil {
		return nil, fmt.Errorf("%w %v: %v", ErrDecode, key, err)
	}
	return t, nil
}

// PutModel stores a model as JSON.
func PutModel(ctx context.Context, s Store, key string, model any) error {
	if err := checkKind(key, KindModel); err != nil {
		return err
	}
	data, err := json.Marshal(model)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, data)
}

// GetModel loads a model stored by PutModel into model.
func GetModel(ctx context.Context, s Store, key string, model any) error {
	if err := checkKind(key, KindModel); err != nil {
		return err
	}
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, model); err != nil {
		return fmt.Errorf("%w %v: %v", ErrDecode, key, err)
	}
	return nil
}

// PutArray stores a matrix. Keys ending in .npy get the NumPy format,
// keys ending in .bin.sz a shape header and little-endian values,
// compressed with snappy.
func PutArray(ctx context.Context, s Store, key string, rows [][]float64) error {
	if err := checkKind(key, KindArray); err != nil {
		return err
	}
	r, c := len(rows), 0
	if r > 0 {
		c = len(rows[0])
	}
	values := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return fmt.Errorf("row %v has %v values, expected %v", i, len(row), c)
		}
		values = append(values, row...)
	}
	var data []byte
	if strings.HasSuffix(key, ".npy") {
		data = encodeNpy(r, c, values)
	} else {
		data = snappy.Encode(nil, encodeRaw(r, c, values))
	}
	return s.Put(ctx, key, data)
}

// GetArray loads a matrix stored by PutArray.
func GetArray(ctx context.Context, s Store, key string) ([][]float64, error) {
	if err := checkKind(key, KindArray); err != nil {
		return nil, err
	}
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var (
		r, c   int
		values []float64
	)
	if strings.HasSuffix(key, ".npy") {
		r, c, values, err = decodeNpy(data)
	} else {
		var raw []byte
		if raw, err = snappy.Decode(nil, data); err == nil {
			r, c, values, err = decodeRaw(raw)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w %v: %v", ErrDecode, key, err)
	}
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = values[i*c : (i+1)*c : (i+1)*c]
	}
	return rows, nil
}

func putValues(buf []byte, values []float64) {
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
}

func getValues(buf []byte, n int) ([]float64, error) {
	if len(buf) != 8*n {
		return nil, fmt.Errorf("%v bytes of values, expected %v", len(buf), 8*n)
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return values, nil
}

func encodeRaw(r, c int, values []float64) []byte {
	buf := make([]byte, 16+8*len(values))
	binary.LittleEndian.PutUint64(buf, uint64(r))
	binary.LittleEndian.PutUint64(buf[8:], uint64(c))
	putValues(buf[16:], values)
	return buf
}

func decodeRaw(buf []byte) (int, int, []float64, error) {
	if len(buf) < 16 {
		return 0, 0, nil, errors.New("truncated shape header")
	}
	r := int(binary.LittleEndian.Uint64(buf))
	c := int(binary.LittleEndian.Uint64(buf[8:]))
	values, err := getValues(buf[16:], r*c)
	return r, c, values, err
}

var npyMagic = []byte("\x93NUMPY")

func encodeNpy(r, c int, values []float64) []byte {
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, %d), }", r, c)
	// magic, version and length take 10 bytes; the header ends in a newline
	// and is padded so the data starts on a 64 byte boundary
	pad := 64 - (10+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"
	buf := make([]byte, 10+len(header)+8*len(values))
	copy(buf, npyMagic)
	buf[6], buf[7] = 1, 0
	binary.LittleEndian.PutUint16(buf[8:], uint16(len(header)))
	copy(buf[10:], header)
	putValues(buf[10+len(header):], values)
	return buf
}

var npyShape = regexp.MustCompile(`'shape':\s*\((\d+),\s*(\d*)\)`)

func decodeNpy(buf []byte) (int, int, []float64, error) {
	if len(buf) < 10 || !bytes.Equal(buf[:6], npyMagic) {
		return 0, 0, nil, errors.New("not a .npy file")
	}
	if buf[6] != 1 {
		return 0, 0, nil, fmt.Errorf("unsupported .npy version %v", buf[6])
	}
	n := int(binary.LittleEndian.Uint16(buf[8:]))
	if len(buf) < 10+n {
		return 0, 0, nil, errors.New("truncated .npy header")
	}
	header := string(buf[10 : 10+n])
	if !strings.Contains(header, "'descr': '<f8'") || !strings.Contains(header, "'fortran_order': False") {
		return 0, 0, nil, fmt.Errorf("unsupported .npy layout %q", strings.TrimSpace(header))
	}
	m := npyShape.FindStringSubmatch(header)
	if m == nil {
		return 0, 0, nil, fmt.Errorf("no shape in .npy header %q", strings.TrimSpace(header))
	}
	r, _ := strconv.Atoi(m[1])
	c := 1
	if m[2] != "" {
		c, _ = strconv.Atoi(m[2])
	}
	values, err := getValues(buf[10+n:], r*c)
	return r, c, values, err
}
