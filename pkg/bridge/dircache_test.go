package bridge

import (
	"errors"
	"testing"

	"github.com/example/ntfsbridge/pkg/efi"
)

// listEntries drains a directory instance into decoded records.
func listEntries(t *testing.T, dir *File) []*efi.FileInfo {
	t.Helper()
	var entries []*efi.FileInfo
	buf := make([]byte, 1024)
	for {
		n, err := dir.Read(buf)
		if err != nil {
			t.Fatalf("directory read failed: %v", err)
		}
		if n == 0 {
			return entries
		}
		info, err := efi.DecodeFileInfo(buf[:n])
		if err != nil {
			t.Fatalf("bad directory record: %v", err)
		}
		entries = append(entries, info)
	}
}

func TestReadDir(t *testing.T) {
	v := newTestVolume(t, Config{})
	root, err := v.OpenVolume()
	if err != nil {
		t.Fatalf("OpenVolume failed: %v", err)
	}
	defer root.Close()

	f, err := root.Open("beta.txt", efi.ModeRead|efi.ModeWrite|efi.ModeCreate, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.Write([]byte("12345")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f.Close()
	f, err = root.Open("alpha.txt", efi.ModeRead|efi.ModeWrite|efi.ModeCreate, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.Close()
	d, err := root.Open("gamma", efi.ModeRead|efi.ModeWrite|efi.ModeCreate, efi.FileDirectory)
	if err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	d.Close()

	entries := listEntries(t, root)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	wantNames := []string{"alpha.txt", "beta.txt", "gamma"}
	for i, want := range wantNames {
		if entries[i].FileName != want {
			t.Errorf("entry %d = %q, want %q", i, entries[i].FileName, want)
		}
	}
	if entries[1].FileSize != 5 {
		t.Errorf("beta.txt size = %d, want 5", entries[1].FileSize)
	}
	if entries[2].Attribute&efi.FileDirectory == 0 {
		t.Error("gamma not marked as a directory")
	}

	// The end of the listing keeps answering with zero-length reads.
	buf := make([]byte, 256)
	n, err := root.Read(buf)
	if n != 0 || err != nil {
		t.Errorf("read past end = %d, %v, want 0, nil", n, err)
	}

	// Resetting the position restarts the listing.
	if err := root.SetPosition(0); err != nil {
		t.Fatalf("SetPosition(0) failed: %v", err)
	}
	again := listEntries(t, root)
	if len(again) != 3 || again[0].FileName != "alpha.txt" {
		t.Errorf("restarted listing wrong: %d entries", len(again))
	}
}

func TestReadDirEmpty(t *testing.T) {
	v := newTestVolume(t, Config{})
	root, err := v.OpenVolume()
	if err != nil {
		t.Fatalf("OpenVolume failed: %v", err)
	}
	defer root.Close()

	buf := make([]byte, 256)
	n, err := root.Read(buf)
	if n != 0 || err != nil {
		t.Errorf("empty directory read = %d, %v, want 0, nil", n, err)
	}
}

func TestReadDirSmallBuffer(t *testing.T) {
	v := newTestVolume(t, Config{})
	root, err := v.OpenVolume()
	if err != nil {
		t.Fatalf("OpenVolume failed: %v", err)
	}
	defer root.Close()

	f, err := root.Open("entry.txt", efi.ModeRead|efi.ModeWrite|efi.ModeCreate, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.Close()

	// A buffer too small for the record reports the required size and
	// leaves the cursor in place.
	small := make([]byte, 8)
	_, err = root.Read(small)
	var se *efi.SizeError
	if !errors.As(err, &se) {
		t.Fatalf("short read error = %v, want SizeError", err)
	}
	if se.Needed != efi.FileInfoSize("entry.txt") {
		t.Errorf("Needed = %d, want %d", se.Needed, efi.FileInfoSize("entry.txt"))
	}

	buf := make([]byte, se.Needed)
	n, err := root.Read(buf)
	if err != nil {
		t.Fatalf("retry read failed: %v", err)
	}
	info, err := efi.DecodeFileInfo(buf[:n])
	if err != nil {
		t.Fatalf("bad record: %v", err)
	}
	if info.FileName != "entry.txt" {
		t.Errorf("entry = %q, want entry.txt", info.FileName)
	}
}

func TestReadDirStaleAfterReset(t *testing.T) {
	v := newTestVolume(t, Config{})
	root, err := v.OpenVolume()
	if err != nil {
		t.Fatalf("OpenVolume failed: %v", err)
	}

	f, err := root.Open("first.txt", efi.ModeRead|efi.ModeWrite|efi.ModeCreate, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.Close()

	entries := listEntries(t, root)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	// An entry added while the listing is materialized stays invisible
	// across position resets; only close+reopen rebuilds it.
	f, err = root.Open("second.txt", efi.ModeRead|efi.ModeWrite|efi.ModeCreate, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.Close()

	if err := root.SetPosition(0); err != nil {
		t.Fatalf("SetPosition(0) failed: %v", err)
	}
	stale := listEntries(t, root)
	if len(stale) != 1 || stale[0].FileName != "first.txt" {
		t.Fatalf("listing after reset = %d entries, want the original 1", len(stale))
	}

	if err := root.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	root, err = v.OpenVolume()
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer root.Close()
	fresh := listEntries(t, root)
	if len(fresh) != 2 {
		t.Fatalf("listing after reopen = %d entries, want 2", len(fresh))
	}
}

func TestReadDirWithOpenEntry(t *testing.T) {
	v := newTestVolume(t, Config{})
	root, err := v.OpenVolume()
	if err != nil {
		t.Fatalf("OpenVolume failed: %v", err)
	}
	defer root.Close()

	// An entry whose object is open must be listed through the live
	// instance; opening it a second time would trip the engine.
	f, err := root.Open("held.txt", efi.ModeRead|efi.ModeWrite|efi.ModeCreate, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries := listEntries(t, root)
	if len(entries) != 1 || entries[0].FileName != "held.txt" {
		t.Fatalf("unexpected listing: %d entries", len(entries))
	}
	if entries[0].FileSize != 3 {
		t.Errorf("held.txt size = %d, want 3", entries[0].FileSize)
	}
}
