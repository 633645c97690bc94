// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// Package manifest defines the backup manifest: a JSON document recording
// a backup's identity and the per-file records needed to restore or verify
// it, since this spec's core excludes a full backup catalogue (§3, D4).
package manifest

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/pgprobackup-go/pagebackup/internal/backupio"
)

// Sentinel write sizes (§3).
const (
	BytesInvalid = -1
	FileNotFound = -2
)

// FileEntry is the per-backed-up-file record persisted in a manifest,
// without its single-use pagemap (§3 Ownership & lifecycle).
type FileEntry struct {
	RelPath          string        `json:"rel_path"`
	Segno            int           `json:"segno"`
	TablespaceOID    uint32        `json:"tablespace_oid"`
	DBOID            uint32        `json:"db_oid"`
	RelOID           uint32        `json:"rel_oid"`
	Size             int64         `json:"size"`
	ExistsInPrev     bool          `json:"exists_in_prev"`
	NBlocks          int64         `json:"n_blocks"`
	ReadSize         int64         `json:"read_size"`
	WriteSize        int64         `json:"write_size"`
	UncompressedSize int64         `json:"uncompressed_size"`
	CRC              uint32        `json:"crc"`
	CompressAlg      int           `json:"compress_alg"`
	Digest           digest.Digest `json:"digest,omitempty"`
}

// Unchanged reports whether this entry was skipped as unchanged (§4.6).
func (f FileEntry) Unchanged() bool {
	return f.WriteSize == BytesInvalid
}

// Missing reports whether the source file had vanished during backup.
func (f FileEntry) Missing() bool {
	return f.WriteSize == FileNotFound
}

// Manifest is the JSON document describing one backup (§3).
type Manifest struct {
	ID             string                `json:"id"`
	ParentID       string                `json:"parent_id,omitempty"`
	StartLSN       uint64                `json:"start_lsn"`
	Mode           string                `json:"mode"`
	ProgramVersion string                `json:"program_version"`
	CRCAlgorithm   backupio.CRCAlgorithm `json:"crc_algorithm"`
	Files          []FileEntry           `json:"files"`
}

// New creates a fresh manifest with a generated backup ID.
func New(mode, programVersion string, startLSN uint64, crcAlg backupio.CRCAlgorithm, parentID string) *Manifest {
	return &Manifest{
		ID:             uuid.NewString(),
		ParentID:       parentID,
		StartLSN:       startLSN,
		Mode:           mode,
		ProgramVersion: programVersion,
		CRCAlgorithm:   crcAlg,
	}
}

// AddFile appends a file record and keeps Files sorted by RelPath, so
// Lookup can binary search it the way the restore driver requires (§4.7).
func (m *Manifest) AddFile(f FileEntry) {
	m.Files = append(m.Files, f)
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].RelPath < m.Files[j].RelPath })
}

// Lookup finds a file's entry by relative path via binary search (§4.7).
func (m *Manifest) Lookup(relPath string) (FileEntry, bool) {
	i := sort.Search(len(m.Files), func(i int) bool { return m.Files[i].RelPath >= relPath })
	if i < len(m.Files) && m.Files[i].RelPath == relPath {
		return m.Files[i], true
	}
	return FileEntry{}, false
}

// Encode writes the manifest as JSON.
func Encode(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(m), "encode manifest")
}

// Decode reads a manifest from JSON.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "decode manifest")
	}
	return &m, nil
}
