package core

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLedgerAppendWritesTotalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "send_block_list.txt")
	l, err := NewLedger(path)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}

	l.Append(LedgerEntry{Size: 100, Timestamp: time.Now(), FileHash: "aa", BlockHash: "bb", PeerID: "peer1"})
	l.Append(LedgerEntry{Size: 250, Timestamp: time.Now(), FileHash: "aa", BlockHash: "cc", PeerID: "peer2"})
	l.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected at least one line in ledger")
	}
	if got := scanner.Text(); got != "Total: 350" {
		t.Fatalf("expected 'Total: 350', got %q", got)
	}
}

func TestLedgerSeedsTotalFromExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "send_block_list.txt")
	l, err := NewLedger(path)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	l.Append(LedgerEntry{Size: 500, Timestamp: time.Now(), FileHash: "aa", BlockHash: "bb", PeerID: "peer1"})
	l.Close()

	total, err := readLedgerTotal(path)
	if err != nil {
		t.Fatalf("readLedgerTotal failed: %v", err)
	}
	if total != 500 {
		t.Fatalf("expected total 500, got %d", total)
	}

	l2, err := NewLedger(path)
	if err != nil {
		t.Fatalf("NewLedger (reopen) failed: %v", err)
	}
	l2.Append(LedgerEntry{Size: 200, Timestamp: time.Now(), FileHash: "dd", BlockHash: "ee", PeerID: "peer3"})
	l2.Close()

	total, err = readLedgerTotal(path)
	if err != nil {
		t.Fatalf("readLedgerTotal failed: %v", err)
	}
	if total != 700 {
		t.Fatalf("expected total 700 after reopen+append, got %d", total)
	}
}

func TestLedgerAppendWritesOnePipeDelimitedLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "send_block_list.txt")
	l, err := NewLedger(path)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	ts := time.Now().UTC().Truncate(time.Second)
	l.Append(LedgerEntry{Size: 100, Timestamp: ts, FileHash: "aa", BlockHash: "bb", PeerID: "peer1"})
	l.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read ledger: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected exactly 2 lines (Total + 1 entry), got %d: %q", len(lines), lines)
	}
	want := "Size: 100 | Timestamp: " + ts.Format(time.RFC3339) + " | file_hash: aa | block_hash: bb | peer_id: peer1"
	if lines[1] != want {
		t.Fatalf("entry line mismatch:\ngot  %q\nwant %q", lines[1], want)
	}
}

func TestReadLedgerTotalMissingFileIsZero(t *testing.T) {
	total, err := readLedgerTotal(filepath.Join(t.TempDir(), "nonexistent.txt"))
	if err != nil {
		t.Fatalf("expected no error for missing ledger, got %v", err)
	}
	if total != 0 {
		t.Fatalf("expected total 0 for missing ledger, got %d", total)
	}
}

func TestReadLedgerTotalRejectsCorruptFirstLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "send_block_list.txt")
	if err := os.WriteFile(path, []byte("not-a-total-line\n"), 0o644); err != nil {
		t.Fatalf("failed to seed corrupt ledger: %v", err)
	}
	if _, err := readLedgerTotal(path); err == nil {
		t.Fatal("expected ErrLedgerCorrupt")
	}
}
