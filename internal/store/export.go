package store

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Allreality/my-twin/internal/model"
)

// DumpVersion is the current export format version.
const DumpVersion = 1

// Dump is the JSON export of a twin's long-term state.
type Dump struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Memories   []model.Entry          `json:"memories"`
	States     []model.EmotionalState `json:"emotional_states"`
}

// WriteDump encodes d as indented JSON.
func WriteDump(w io.Writer, d Dump) error {
	if d.Version == 0 {
		d.Version = DumpVersion
	}
	if d.Memories == nil {
		d.Memories = []model.Entry{}
	}
	if d.States == nil {
		d.States = []model.EmotionalState{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// ReadDump decodes an export. A bare JSON array is accepted as a list of
// memories.
func ReadDump(r io.Reader) (Dump, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Dump{}, err
	}

	var d Dump
	if err := json.Unmarshal(raw, &d); err != nil {
		var entries []model.Entry
		if err2 := json.Unmarshal(raw, &entries); err2 != nil {
			return Dump{}, fmt.Errorf("parse dump: %w", err)
		}
		return Dump{Version: DumpVersion, Memories: entries}, nil
	}
	if d.Version > DumpVersion {
		return Dump{}, fmt.Errorf("unsupported dump version %d", d.Version)
	}
	return d, nil
}
