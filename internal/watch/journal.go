package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is one journaled dispatch: where the log came from and what it
// decoded to.
type Record struct {
	ChainID      uint64 `json:"chain_id"`
	BlockNumber  uint64 `json:"block_number"`
	BlockTime    uint64 `json:"block_time"`
	TxHash       string `json:"tx_hash"`
	LogIndex     uint64 `json:"log_index"`
	Address      string `json:"address"`
	Kind         string `json:"kind"`
	DispatchedAt string `json:"dispatched_at"`
}

// Journal is the audit sink for dispatched events. The watcher reads it
// back on startup to suppress events that were dispatched before the last
// checkpoint was written.
type Journal interface {
	Append(records []Record) error
	RecordsFrom(block uint64) ([]Record, error)
}

// JsonlJournal appends records to a JSONL file.
type JsonlJournal struct {
	path string
	mu   sync.Mutex
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

func (j *JsonlJournal) Append(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal journal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write journal record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}

	return nil
}

// RecordsFrom returns journaled records at or above the given block. A
// missing file means nothing was dispatched yet. A torn trailing line from
// an interrupted append is skipped; its event never finished journaling
// and is safe to dispatch again.
func (j *JsonlJournal) RecordsFrom(block uint64) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		if record.BlockNumber >= block {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	return records, nil
}

// NopJournal discards records.
type NopJournal struct{}

func (NopJournal) Append([]Record) error { return nil }

func (NopJournal) RecordsFrom(uint64) ([]Record, error) { return nil, nil }
