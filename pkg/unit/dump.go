package unit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DumpEntry is one failed message stored in a unit's dump file.
type DumpEntry struct {
	UnitID      string          `json:"unit_id"`
	SourceQueue string          `json:"source_queue"`
	Error       string          `json:"error"`
	Traceback   string          `json:"traceback,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`
	// Raw holds the payload when it is not valid JSON.
	Raw string `json:"raw,omitempty"`
}

// dumpFile stores dump entries keyed by RFC 3339 timestamp in a JSON file.
type dumpFile struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func newDumpFile(dir, id string) *dumpFile {
	return &dumpFile{path: filepath.Join(dir, id+".dump"), now: time.Now}
}

// Path returns the location of the dump file.
func (d *dumpFile) Path() string { return d.path }

// Load returns all entries. A missing file yields an empty map.
func (d *dumpFile) Load() (map[string]DumpEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load()
}

func (d *dumpFile) load() (map[string]DumpEntry, error) {
	entries := make(map[string]DumpEntry)
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Append adds entry and rewrites the file atomically (temp file, then
// rename).
func (d *dumpFile) Append(entry DumpEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.load()
	if err != nil {
		return err
	}
	key := d.now().UTC().Format(time.RFC3339Nano)
	for _, dup := entries[key]; dup; _, dup = entries[key] {
		key += "+"
	}
	entries[key] = entry

	if err := os.MkdirAll(filepath.Dir(d.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, d.path)
}

func newDumpEntry(id, source string, procErr error, traceback string, raw []byte) DumpEntry {
	e := DumpEntry{UnitID: id, SourceQueue: source, Error: procErr.Error(), Traceback: traceback}
	if json.Valid(raw) {
		e.Message = json.RawMessage(append([]byte(nil), raw...))
	} else if len(raw) > 0 {
		e.Raw = string(raw)
	}
	return e
}
