// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists analyzed symbol universes in BadgerDB so a
// later run can be diffed against a saved baseline without re-analyzing
// the earlier state.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// SchemaVersion is the serialization schema version stamped into every
// snapshot payload.
const SchemaVersion = "1.0"

// BadgerDB key components.
const (
	keyPrefixSnap      = "flowdiff:snap:"
	keyPrefixSnapIndex = "flowdiff:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// Meta describes one saved snapshot.
type Meta struct {
	// SnapshotID is derived from SHA256(ProjectRoot + CreatedAtMilli)[:16].
	SnapshotID string `json:"snapshot_id"`

	ProjectRoot string `json:"project_root"`

	// ProjectHash is SHA256(ProjectRoot)[:16], the key-grouping prefix.
	ProjectHash string `json:"project_hash"`

	// Fingerprint is the xxhash structure fingerprint of the symbol
	// universe, hex encoded.
	Fingerprint string `json:"fingerprint"`

	Label          string `json:"label,omitempty"`
	CreatedAtMilli int64  `json:"created_at_milli"`
	SymbolCount    int    `json:"symbol_count"`
	SchemaVersion  string `json:"schema_version"`
	CompressedSize int64  `json:"compressed_size"`

	// ContentHash is the SHA256 of the compressed payload, verified on load.
	ContentHash string `json:"content_hash"`
}

// payload is the serialized snapshot body.
type payload struct {
	SchemaVersion string         `json:"schema_version"`
	ProjectRoot   string         `json:"project_root"`
	Symbols       []*core.Symbol `json:"symbols"`
}

// Store saves and loads symbol universes as gzip-compressed JSON in
// BadgerDB.
//
// Thread Safety: safe for concurrent use; BadgerDB handles its own
// concurrency control.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) a snapshot database at dir and returns a Store
// over it. The caller owns Close.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db at %s: %w", dir, err)
	}
	return NewStore(db, slog.Default())
}

// NewStore wraps an already-open BadgerDB instance.
func NewStore(db *badger.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists the flat universe of an analysis run.
//
// Key Schema:
//
//	flowdiff:snap:{projectHash}:{snapshotID}:data → gzip(JSON(payload))
//	flowdiff:snap:{projectHash}:{snapshotID}:meta → JSON(Meta)
//	flowdiff:snap:{projectHash}:latest            → snapshotID
//	flowdiff:snap:index:{snapshotID}              → projectHash
func (s *Store) Save(ctx context.Context, projectRoot string, tables map[string]core.Table, label string) (*Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables to snapshot")
	}

	universe := core.FlattenTables(tables)
	symbols := make([]*core.Symbol, 0, len(universe))
	names := make([]string, 0, len(universe))
	for name := range universe {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		symbols = append(symbols, universe[name])
	}

	body, err := json.Marshal(payload{
		SchemaVersion: SchemaVersion,
		ProjectRoot:   projectRoot,
		Symbols:       symbols,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(body); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	now := time.Now().UnixMilli()
	projectHash := hashString(projectRoot)[:16]
	// The uuid keeps IDs unique even for saves within the same millisecond.
	snapshotID := hashString(fmt.Sprintf("%s:%d:%s", projectRoot, now, uuid.NewString()))[:16]

	meta := &Meta{
		SnapshotID:     snapshotID,
		ProjectRoot:    projectRoot,
		ProjectHash:    projectHash,
		Fingerprint:    fmt.Sprintf("%016x", core.FingerprintSymbols(symbols)),
		Label:          label,
		CreatedAtMilli: now,
		SymbolCount:    len(symbols),
		SchemaVersion:  SchemaVersion,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		return txn.Set([]byte(indexKey), []byte(projectHash))
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}

	s.logger.Info("snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("project_root", projectRoot),
		slog.Int("symbol_count", meta.SymbolCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load retrieves a snapshot by ID and returns its flat symbol universe.
func (s *Store) Load(ctx context.Context, snapshotID string) (map[string]*core.Symbol, *Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := s.projectHashFor(snapshotID)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	return s.loadByKeys(projectHash, snapshotID)
}

// LoadLatest loads the most recent snapshot for a project root.
func (s *Store) LoadLatest(ctx context.Context, projectRoot string) (map[string]*core.Symbol, *Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	projectHash := hashString(projectRoot)[:16]
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest

	var snapshotID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("no snapshot for %s: %w", projectRoot, err)
	}
	return s.loadByKeys(projectHash, snapshotID)
}

// List returns snapshot metadata, newest first, optionally restricted to
// one project root.
func (s *Store) List(ctx context.Context, projectRoot string, limit int) ([]*Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	prefix := keyPrefixSnap
	if projectRoot != "" {
		prefix = keyPrefixSnap + hashString(projectRoot)[:16] + ":"
	}

	var results []*Meta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !isMetaKey(key) {
				continue
			}
			var meta Meta
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				s.logger.Warn("skipping corrupt snapshot metadata",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes one snapshot's data, metadata and index entries. If the
// latest pointer referenced the deleted snapshot it is re-pointed at the
// newest remaining snapshot for the project, or removed when none remain.
func (s *Store) Delete(ctx context.Context, snapshotID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := s.projectHashFor(snapshotID)
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{dataKey, metaKey, indexKey} {
			if err := txn.Delete([]byte(key)); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return nil
		}
		var latest string
		_ = item.Value(func(val []byte) error {
			latest = string(val)
			return nil
		})
		if latest != snapshotID {
			return nil
		}
		next := s.newestRemaining(txn, projectHash)
		if next == "" {
			if err := txn.Delete([]byte(latestKey)); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("deleting latest pointer: %w", err)
			}
			return nil
		}
		if err := txn.Set([]byte(latestKey), []byte(next)); err != nil {
			return fmt.Errorf("re-pointing latest: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	s.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// newestRemaining scans the metadata still visible in txn and returns the
// ID of the project's newest snapshot, or "" when none remain. Deletes
// pending in txn are already invisible here.
func (s *Store) newestRemaining(txn *badger.Txn, projectHash string) string {
	prefix := []byte(keyPrefixSnap + projectHash + ":")
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var bestID string
	var bestAt int64
	for it.Seek(prefix); it.Valid(); it.Next() {
		item := it.Item()
		if !isMetaKey(string(item.Key())) {
			continue
		}
		var meta Meta
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			continue
		}
		if bestID == "" || meta.CreatedAtMilli > bestAt {
			bestID = meta.SnapshotID
			bestAt = meta.CreatedAtMilli
		}
	}
	return bestID
}

// Prune deletes all but the newest keep snapshots of a project.
func (s *Store) Prune(ctx context.Context, projectRoot string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	metas, err := s.List(ctx, projectRoot, 1<<30)
	if err != nil {
		return 0, err
	}
	if len(metas) <= keep {
		return 0, nil
	}

	pruned := 0
	for _, meta := range metas[keep:] {
		if err := s.Delete(ctx, meta.SnapshotID); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

func (s *Store) loadByKeys(projectHash, snapshotID string) (map[string]*core.Symbol, *Meta, error) {
	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta

	var compressedData, metaJSON []byte
	err := s.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, err)
		}
		if compressedData, err = dataItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}
		metaItem, err := txn.Get([]byte(metaKey))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, err)
		}
		if metaJSON, err = metaItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var meta Meta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if meta.ContentHash != "" && meta.ContentHash != hashBytes(compressedData) {
		return nil, nil, fmt.Errorf("integrity check failed for %s", snapshotID)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()

	body, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot %s: %w", snapshotID, err)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling snapshot %s: %w", snapshotID, err)
	}
	if p.SchemaVersion != SchemaVersion {
		return nil, nil, fmt.Errorf("snapshot %s has schema %q, want %q", snapshotID, p.SchemaVersion, SchemaVersion)
	}

	universe := make(map[string]*core.Symbol, len(p.Symbols))
	for _, sym := range p.Symbols {
		universe[sym.QualifiedName] = sym
	}
	return universe, &meta, nil
}

func (s *Store) projectHashFor(snapshotID string) (string, error) {
	indexKey := keyPrefixSnapIndex + snapshotID
	var projectHash string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			projectHash = string(val)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return projectHash, nil
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func isMetaKey(key string) bool {
	return len(key) > len(keySuffixMeta) && key[len(key)-len(keySuffixMeta):] == keySuffixMeta
}
