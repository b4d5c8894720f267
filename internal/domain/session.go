package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SearchType selects the indexing strategy behind a session's index handle.
type SearchType string

const (
	SearchList   SearchType = "list"
	SearchVector SearchType = "vector"
)

// SearchTypes lists every supported search type in a stable order.
var SearchTypes = []SearchType{SearchList, SearchVector}

// ParseSearchType validates a caller supplied search type.
func ParseSearchType(s string) (SearchType, error) {
	st := SearchType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SearchTypes {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSearchType, s)
}

func (t SearchType) Valid() bool {
	_, err := ParseSearchType(string(t))
	return err == nil
}

// SessionKey identifies exactly one cached index handle.
type SessionKey struct {
	SessionID  string
	SearchType SearchType
}

func NewSessionKey(sessionID string, searchType SearchType) SessionKey {
	return SessionKey{SessionID: sessionID, SearchType: searchType}
}

// String is for logs and messages only; the key itself is never compared as a string.
func (k SessionKey) String() string {
	return k.SessionID + "_" + string(k.SearchType)
}

// ValidateName rejects identifiers that would escape a session's storage area.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

type StoredDocument struct {
	Name    string
	Content []byte
}

// ChatEntry is an opaque chat transcript item, usually {"prompt": ..., "completion": ...}.
type ChatEntry = json.RawMessage

// NewChatEntry builds a transcript item from a prompt response.
func NewChatEntry(resp PromptResponse) ChatEntry {
	data, _ := json.Marshal(resp)
	return ChatEntry(data)
}

// HistoryRecord is the per-session metadata persisted next to the documents.
type HistoryRecord struct {
	Files []string
	Chats map[SearchType][]ChatEntry
}

// DefaultHistory returns the template used whenever no usable record exists.
func DefaultHistory() HistoryRecord {
	return HistoryRecord{
		Files: []string{},
		Chats: make(map[SearchType][]ChatEntry),
	}
}

// Chat returns the transcript for one search type, never nil.
func (h HistoryRecord) Chat(t SearchType) []ChatEntry {
	if entries, ok := h.Chats[t]; ok && entries != nil {
		return entries
	}
	return []ChatEntry{}
}

func chatKey(t SearchType) string {
	return string(t) + "_chat"
}

// MarshalJSON writes the flat {"files", "<type>_chat"...} layout.
func (h HistoryRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(SearchTypes)+1)
	files := h.Files
	if files == nil {
		files = []string{}
	}
	out["files"] = files
	for _, t := range SearchTypes {
		out[chatKey(t)] = h.Chat(t)
	}
	for t, entries := range h.Chats {
		if entries == nil {
			entries = []ChatEntry{}
		}
		out[chatKey(t)] = entries
	}
	return json.Marshal(out)
}

func (h *HistoryRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("history record is not an object")
	}

	rec := DefaultHistory()
	if files, ok := raw["files"]; ok {
		if err := json.Unmarshal(files, &rec.Files); err != nil {
			return fmt.Errorf("history files: %w", err)
		}
		if rec.Files == nil {
			rec.Files = []string{}
		}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasSuffix(k, "_chat") {
			continue
		}
		var entries []ChatEntry
		if err := json.Unmarshal(raw[k], &entries); err != nil {
			return fmt.Errorf("history %s: %w", k, err)
		}
		if entries == nil {
			entries = []ChatEntry{}
		}
		rec.Chats[SearchType(strings.TrimSuffix(k, "_chat"))] = entries
	}

	*h = rec
	return nil
}

type PromptResponse struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

type FilesResponse struct {
	SessionID string   `json:"session_id"`
	Files     []string `json:"files"`
}

type FileResponse struct {
	SessionID string `json:"session_id"`
	File      string `json:"file"`
}

type InitializeResponse struct {
	Session string        `json:"session"`
	History HistoryRecord `json:"history"`
}
