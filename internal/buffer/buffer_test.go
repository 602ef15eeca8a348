package buffer

import "testing"

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(0)
	b.WriteUint8(0xAB)
	b.WriteUint16(0x1234)
	b.WriteUint32(0xDEADBEEF)
	b.WriteUint64(0x0102030405060708)
	b.WriteUint48(0x0000FFFFFFFFFF)
	b.WriteFloat32(3.5)
	b.WriteFloat64(-2.25)
	b.WriteString("hello")
	b.WriteBytes([]byte{1, 2, 3})

	b.SetOffset(0)

	if v, err := b.ReadUint8(); err != nil || v != 0xAB {
		t.Fatalf("ReadUint8 = %v, %v", v, err)
	}
	if v, err := b.ReadUint16(); err != nil || v != 0x1234 {
		t.Fatalf("ReadUint16 = %v, %v", v, err)
	}
	if v, err := b.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("ReadUint32 = %v, %v", v, err)
	}
	if v, err := b.ReadUint64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("ReadUint64 = %v, %v", v, err)
	}
	if v, err := b.ReadUint48(); err != nil || v != 0x0000FFFFFFFFFF {
		t.Fatalf("ReadUint48 = %v, %v", v, err)
	}
	if v, err := b.ReadFloat32(); err != nil || v != 3.5 {
		t.Fatalf("ReadFloat32 = %v, %v", v, err)
	}
	if v, err := b.ReadFloat64(); err != nil || v != -2.25 {
		t.Fatalf("ReadFloat64 = %v, %v", v, err)
	}
	if v, err := b.ReadString(5); err != nil || v != "hello" {
		t.Fatalf("ReadString = %q, %v", v, err)
	}
	if v, err := b.ReadBytes(3); err != nil || string(v) != "\x01\x02\x03" {
		t.Fatalf("ReadBytes = %v, %v", v, err)
	}
}

func TestResizeRejectsOverMaxSize(t *testing.T) {
	b := New(0)
	if err := b.Resize(MaxSize + 1); err == nil {
		t.Fatal("expected an error resizing past MaxSize")
	}
	if err := b.Resize(MaxSize); err != nil {
		t.Fatalf("resizing to exactly MaxSize should succeed: %v", err)
	}
}

func TestReadPastEndErrors(t *testing.T) {
	b := New(0)
	b.WriteUint8(1)
	b.SetOffset(0)
	if _, err := b.ReadUint64(); err == nil {
		t.Fatal("expected an error reading past the buffer's logical end")
	}
}

func TestResetReclaimsOversizedBackingArray(t *testing.T) {
	b := New(16)
	if err := b.Resize(1024); err != nil {
		t.Fatalf("resize: %v", err)
	}
	b.Reset()
	if cap(b.data) > 1024 {
		t.Fatalf("expected backing array to be reclaimed, cap = %d", cap(b.data))
	}
	if b.Len() != 0 || b.Offset() != 0 {
		t.Fatalf("reset should zero length and offset, got len=%d offset=%d", b.Len(), b.Offset())
	}
}

func TestPeekDoesNotAdvanceCursor(t *testing.T) {
	b := New(0)
	b.WriteBytes([]byte{9, 9, 9})
	b.SetOffset(0)
	if _, err := b.Peek(3); err != nil {
		t.Fatalf("peek: %v", err)
	}
	if b.Offset() != 0 {
		t.Fatalf("Peek should not advance the cursor, offset = %d", b.Offset())
	}
}
