package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"docsearch/config"
)

// CurrentSchemaVersion is bumped on breaking changes to the on-disk format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

func readSchemaInfo(db *bbolt.DB, bucket []byte) (SchemaInfo, error) {
	var info SchemaInfo
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if data := b.Get(keySchemaVersion); data != nil {
			if err := json.Unmarshal(data, &info.Version); err != nil {
				return fmt.Errorf("corrupt schema version: %w", err)
			}
		}
		info.ConfigHash = string(b.Get(keyConfigHash))
		return nil
	})
	return info, err
}

func writeSchemaInfo(tx *bbolt.Tx, bucket []byte, info SchemaInfo) error {
	b, err := tx.CreateBucketIfNotExists(bucket)
	if err != nil {
		return err
	}
	if err := putJSON(b, keySchemaVersion, info.Version); err != nil {
		return err
	}
	return b.Put(keyConfigHash, []byte(info.ConfigHash))
}

func (s *BoltStore) GetSchemaInfo() (SchemaInfo, error) {
	return readSchemaInfo(s.db, bucketStats)
}

func (s *BoltStore) SetSchemaInfo(info SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return writeSchemaInfo(tx, bucketStats, info)
	})
}

// ComputeConfigHash hashes the settings that change how documents are
// chunked, scored or embedded. A different hash means saved state is stale.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		FoldPlurals  bool    `json:"fold_plurals"`
		ChunkTokens  int     `json:"chunk_tokens"`
		ChunkOverlap int     `json:"chunk_overlap"`
		K1           float64 `json:"k1"`
		B            float64 `json:"b"`
		EmbProvider  string  `json:"emb_provider"`
		EmbModel     string  `json:"emb_model"`
		EmbDimension int     `json:"emb_dimension"`
	}{
		FoldPlurals:  cfg.Index.FoldPlurals,
		ChunkTokens:  cfg.Index.ChunkTokens,
		ChunkOverlap: cfg.Index.ChunkOverlap,
		K1:           cfg.Index.K1,
		B:            cfg.Index.B,
		EmbProvider:  cfg.Embedding.Provider,
		EmbModel:     cfg.Embedding.Model,
		EmbDimension: cfg.Embedding.Dimension,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

type MigrationResult struct {
	NeedsRebuild bool
	OldVersion   int
	NewVersion   int
	Reason       string
}

func checkSchema(info SchemaInfo, configHash string) MigrationResult {
	result := MigrationResult{OldVersion: info.Version, NewVersion: CurrentSchemaVersion}
	switch {
	case info.Version == 0:
		result.NeedsRebuild = true
		result.Reason = "no saved index"
	case info.Version != CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("schema v%d does not match v%d", info.Version, CurrentSchemaVersion)
	case info.ConfigHash != configHash:
		result.NeedsRebuild = true
		result.Reason = "index configuration changed"
	}
	return result
}

// CheckMigration reports whether the saved snapshot can be reused under configHash.
func (s *BoltStore) CheckMigration(configHash string) (MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to get schema info: %w", err)
	}
	return checkSchema(info, configHash), nil
}

// Stamp records the current schema version and configHash.
func (s *BoltStore) Stamp(configHash string) error {
	return s.SetSchemaInfo(SchemaInfo{Version: CurrentSchemaVersion, ConfigHash: configHash})
}

func clearBuckets(tx *bbolt.Tx) error {
	for _, name := range dataBuckets {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		if _, err := tx.CreateBucket(name); err != nil {
			return err
		}
	}
	if b := tx.Bucket(bucketStats); b != nil {
		return b.Delete(keyStats)
	}
	return nil
}
