package store

import (
	"fmt"
	"os"

	"docsearch/internal/domain"
	"docsearch/internal/port"
)

// SaveSnapshot writes files and stats to the bolt file at path, replacing
// whatever was there, and stamps it with configHash.
func SaveSnapshot(path, configHash string, files []port.IndexedFile, stats domain.Stats) error {
	s, err := NewBoltStore(path)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Replace(files, stats); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return s.Stamp(configHash)
}

// LoadSnapshot returns the documents and chunks saved at path, keyed by
// document id. A missing file or a stale stamp yields ok=false.
func LoadSnapshot(path, configHash string) (files map[string]port.IndexedFile, ok bool, err error) {
	if !fileExists(path) {
		return nil, false, nil
	}

	s, err := NewBoltStore(path)
	if err != nil {
		return nil, false, err
	}
	defer s.Close()

	check, err := s.CheckMigration(configHash)
	if err != nil {
		return nil, false, err
	}
	if check.NeedsRebuild {
		return nil, false, nil
	}

	docs, err := s.Documents()
	if err != nil {
		return nil, false, err
	}

	files = make(map[string]port.IndexedFile, len(docs))
	for _, f := range docs {
		files[f.Doc.ID] = f
	}
	return files, true, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
