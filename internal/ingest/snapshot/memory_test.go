package snapshot

import (
	"context"
	"encoding/json"
	"testing"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if snap, err := store.Read(ctx, "c-1"); err != nil || snap != nil {
		t.Fatalf("Read(missing): %+v err=%v", snap, err)
	}
	if err := store.Write(ctx, types.ScanSnapshot{CourseID: "c-1"}); err != ErrInvalidSnapshot {
		t.Fatalf("Write(no status): expected ErrInvalidSnapshot, got %v", err)
	}

	n := 12
	_ = store.Write(ctx, types.ScanSnapshot{CourseID: "c-2", Status: types.SnapshotComplete, Timestamp: 2, PDFCount: &n})
	_ = store.Write(ctx, types.ScanSnapshot{CourseID: "c-1", Status: types.SnapshotScanning, Timestamp: 1})

	list, err := store.List(ctx)
	if err != nil || len(list) != 2 || list[0].CourseID != "c-1" {
		t.Fatalf("List: %+v err=%v", list, err)
	}
	got, _ := store.Read(ctx, "c-2")
	if got == nil || got.PDFCount == nil || *got.PDFCount != 12 {
		t.Fatalf("Read: %+v", got)
	}

	_ = store.Remove(ctx, "c-2")
	if got, _ := store.Read(ctx, "c-2"); got != nil {
		t.Fatalf("Remove: snapshot still present")
	}
}

func TestSnapshotWireFormat(t *testing.T) {
	n := 3
	raw, err := json.Marshal(types.ScanSnapshot{CourseID: "42", Status: types.SnapshotComplete, Timestamp: 1700000000000, PDFCount: &n})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"courseId":"42","status":"complete","timestamp":1700000000000,"pdfCount":3}`
	if string(raw) != want {
		t.Fatalf("wire format:\n got %s\nwant %s", raw, want)
	}
	raw, _ = json.Marshal(types.ScanSnapshot{CourseID: "42", Status: types.SnapshotScanning, Timestamp: 1})
	if string(raw) != `{"courseId":"42","status":"scanning","timestamp":1}` {
		t.Fatalf("scanning snapshot should omit pdfCount: %s", raw)
	}
}
