/*
 * vodbridge is a project to aggregate heterogeneous VOD sources behind a single local API.
 * Copyright (C) 2026  Vodbridge Contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package cache

import (
	"bytes"
	"compress/gzip"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vodbridge/vodbridge/pkg/utils"
)

const (
	// compressThreshold moves payloads to the gzip directory.
	compressThreshold = 1 << 20
	// maxDiskBytes triggers the oldest-25% trim.
	maxDiskBytes = 100 << 20
)

// schemaMagic is the 4-byte version prefix of every cache file. Bump the
// last byte on layout changes; unknown prefixes read as corrupt.
var schemaMagic = []byte{'V', 'B', 'C', 1}

// diskTier stores entries as individual files keyed by a stable hash:
// <dir>/data/<hash> holds plain payloads, <dir>/compressed/<hash> holds
// gzipped payloads over the threshold. File layout: magic, big-endian
// expireAt (unix seconds, 8 bytes), payload.
type diskTier struct {
	dataDir       string
	compressedDir string
}

func newDiskTier(dir string) (*diskTier, error) {
	d := &diskTier{
		dataDir:       filepath.Join(dir, "data"),
		compressedDir: filepath.Join(dir, "compressed"),
	}
	if err := os.MkdirAll(d.dataDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.compressedDir, 0755); err != nil {
		return nil, err
	}
	return d, nil
}

func hashKey(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (d *diskTier) get(key string) ([]byte, time.Time, bool) {
	name := hashKey(key)

	if value, expireAt, ok := d.readFile(filepath.Join(d.dataDir, name), false); ok {
		return value, expireAt, true
	}
	return d.readFile(filepath.Join(d.compressedDir, name), true)
}

// readFile loads and validates one cache file. Corrupt or expired files are
// deleted and report a miss.
func (d *diskTier) readFile(path string, compressed bool) ([]byte, time.Time, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, false
	}

	if len(raw) < len(schemaMagic)+8 || !bytes.Equal(raw[:len(schemaMagic)], schemaMagic) {
		utils.DebugLog("Dropping corrupt cache file: %s", path)
		os.Remove(path)
		return nil, time.Time{}, false
	}

	expireUnix := int64(binary.BigEndian.Uint64(raw[len(schemaMagic) : len(schemaMagic)+8]))
	expireAt := time.Unix(expireUnix, 0)
	if !time.Now().Before(expireAt) {
		os.Remove(path)
		return nil, time.Time{}, false
	}

	payload := raw[len(schemaMagic)+8:]
	if compressed {
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			utils.DebugLog("Dropping unreadable compressed cache file: %s", path)
			os.Remove(path)
			return nil, time.Time{}, false
		}
		payload, err = io.ReadAll(gr)
		gr.Close()
		if err != nil {
			os.Remove(path)
			return nil, time.Time{}, false
		}
	}

	// Track recency for the trim pass.
	now := time.Now()
	os.Chtimes(path, now, now)

	return payload, expireAt, true
}

func (d *diskTier) put(key string, value []byte, expireAt time.Time) error {
	name := hashKey(key)

	var payload []byte
	var path string
	if len(value) > compressThreshold {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(value); err != nil {
			return err
		}
		if err := gw.Close(); err != nil {
			return err
		}
		payload = buf.Bytes()
		path = filepath.Join(d.compressedDir, name)
		// The plain copy, if any, is superseded.
		os.Remove(filepath.Join(d.dataDir, name))
	} else {
		payload = value
		path = filepath.Join(d.dataDir, name)
		os.Remove(filepath.Join(d.compressedDir, name))
	}

	header := make([]byte, len(schemaMagic)+8)
	copy(header, schemaMagic)
	binary.BigEndian.PutUint64(header[len(schemaMagic):], uint64(expireAt.Unix()))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(header, payload...), 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (d *diskTier) remove(key string) {
	name := hashKey(key)
	os.Remove(filepath.Join(d.dataDir, name))
	os.Remove(filepath.Join(d.compressedDir, name))
}

func (d *diskTier) clearExpired() {
	for _, dir := range []string{d.dataDir, d.compressedDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			f, err := os.Open(path)
			if err != nil {
				continue
			}
			header := make([]byte, len(schemaMagic)+8)
			_, err = io.ReadFull(f, header)
			f.Close()
			if err != nil || !bytes.Equal(header[:len(schemaMagic)], schemaMagic) {
				os.Remove(path)
				continue
			}
			expireUnix := int64(binary.BigEndian.Uint64(header[len(schemaMagic):]))
			if !time.Now().Before(time.Unix(expireUnix, 0)) {
				os.Remove(path)
			}
		}
	}
}

func (d *diskTier) sizeBytes() int64 {
	var total int64
	for _, dir := range []string{d.dataDir, d.compressedDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if info, err := entry.Info(); err == nil && !info.IsDir() {
				total += info.Size()
			}
		}
	}
	return total
}

// trim deletes the oldest 25% of files by last access when the tier exceeds
// its size budget.
func (d *diskTier) trim() {
	if d.sizeBytes() <= maxDiskBytes {
		return
	}

	type fileAge struct {
		path    string
		modTime time.Time
	}
	var files []fileAge
	for _, dir := range []string{d.dataDir, d.compressedDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if info, err := entry.Info(); err == nil && !info.IsDir() {
				files = append(files, fileAge{filepath.Join(dir, entry.Name()), info.ModTime()})
			}
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	toDelete := len(files) / 4
	utils.InfoLog("Disk cache over budget, trimming %d of %d files", toDelete, len(files))
	for i := 0; i < toDelete; i++ {
		os.Remove(files[i].path)
	}
}
