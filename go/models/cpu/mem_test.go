package cpu

import (
	"bytes"
	"encoding/binary"
	"testing"
)

var asdf = []byte("asdf")

func TestMemRange(t *testing.T) {
	mem := NewMem(16, binary.LittleEndian)
	if err := mem.MemMapProt(0x1000, 0x1000, 0); err != nil {
		t.Fatal("failed to map memory:", err)
	}
	if err := mem.MemMapProt(0xf000, 0x2000, 0); err == nil {
		t.Fatal("mapped memory outside range")
	}
	if err := mem.MemWrite(0x2000, asdf); err == nil {
		t.Error("write succeeded above mapped memory")
	}
}

func TestMem(t *testing.T) {
	mappings := [][]uint64{
		{0x1000, 0x1000, PROT_READ | PROT_WRITE | PROT_EXEC},
		{0x2000, 0x1000, PROT_READ},
		{0x3000, 0x1000, PROT_READ | PROT_WRITE},
		{0x4000, 0x1000, PROT_READ | PROT_EXEC},
		{0x5000, 0x1000, PROT_EXEC},
	}

	mem := NewMem(16, binary.LittleEndian)
	for _, v := range mappings {
		if err := mem.MemMapProt(v[0], v[1], int(v[2])); err != nil {
			t.Fatalf("failed to map memory (%#x, %#x, %d): %v", v[0], v[1], v[2], err)
		}
	}
	if err := mem.MemWrite(0, asdf); err == nil {
		t.Error("write succeeded below mapped memory")
	}
	if err := mem.MemWrite(0x6000, asdf); err == nil {
		t.Error("write succeeded above mapped memory")
	}
	for _, v := range mappings {
		if err := mem.MemWrite(v[0], asdf); err != nil {
			t.Error("write failed inside mapped memory")
		}
	}
	for _, v := range mappings {
		if tmp, err := mem.MemRead(v[0], uint64(len(asdf))); err != nil {
			t.Error("read failed inside mapped memory")
		} else if !bytes.Equal(tmp, asdf) {
			t.Error("read returned bad value")
		}
	}
	// now test memory protections
	tmp := make([]byte, 0x1000)
	for _, v := range mappings {
		if _, err := mem.ReadProt(v[0], v[1], int(v[2])); err != nil {
			t.Errorf("valid read failed on (%#x, %#x, %d): %v", v[0], v[1], v[2], err)
		}
		if _, err := mem.ReadProt(v[0], v[1], 8); err == nil {
			t.Errorf("invalid read succeeded on (%#x, %#x, %d)", v[0], v[1], v[2])
		}
		if err := mem.WriteProt(v[0], tmp, int(v[2])); err != nil {
			t.Errorf("valid write failed on (%#x, %#x, %d): %v", v[0], v[1], v[2], err)
		}
		if err := mem.WriteProt(v[0], tmp, 8); err == nil {
			t.Errorf("invalid write succeeded on (%#x, %#x, %d)", v[0], v[1], v[2])
		}
	}
	for _, v := range mappings {
		if _, err := mem.ReadProt(v[0], v[1], PROT_EXEC); (v[2]&PROT_EXEC == 0 && err == nil) || (v[2]&PROT_EXEC == PROT_EXEC && err != nil) {
			t.Error("PROT_EXEC mismatch")
		}
	}
}

func TestMemUint(t *testing.T) {
	rawtest := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	ltable := map[int]uint64{
		1: 0x1,
		2: 0x0201,
		4: 0x04030201,
		8: 0x0807060504030201,
	}
	btable := map[int]uint64{
		1: 0x1,
		2: 0x0102,
		4: 0x01020304,
		8: 0x0102030405060708,
	}
	for _, tc := range []struct {
		order binary.ByteOrder
		table map[int]uint64
	}{
		{binary.LittleEndian, ltable},
		{binary.BigEndian, btable},
	} {
		mem := NewMem(32, tc.order)
		if err := mem.MemMapProt(0x1000, 0x1000, PROT_READ|PROT_WRITE); err != nil {
			t.Fatal("failed to map memory:", err)
		}
		if err := mem.MemWrite(0x1000, rawtest); err != nil {
			t.Fatal("failed to write memory:", err)
		}
		for size, val := range tc.table {
			if n, err := mem.ReadUint(0x1000, size, PROT_READ); err != nil {
				t.Error("failed to read uint:", err)
			} else if n != val {
				t.Errorf("%v: read %#x, expected %#x", tc.order, n, val)
			}
		}
		for size, val := range tc.table {
			if err := mem.WriteUint(0x1800, size, PROT_WRITE, val); err != nil {
				t.Error("failed to write uint:", err)
			}
			if n, err := mem.ReadUint(0x1800, size, PROT_READ); err != nil {
				t.Error("failed to read uint:", err)
			} else if n != val {
				t.Errorf("%v: read-after-write %#x, expected %#x", tc.order, n, val)
			}
		}
	}
}

func TestMemFaultAddr(t *testing.T) {
	mem := NewMem(32, binary.LittleEndian)
	if err := mem.MemMapProt(0x1000, 0x1000, PROT_READ|PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	// a 4-byte read straddling the end of the mapping faults on the first unmapped byte
	_, err := mem.ReadUint(0x1ffe, 4, PROT_READ)
	merr, ok := err.(*MemError)
	if !ok {
		t.Fatalf("expected *MemError, got %v", err)
	}
	if merr.Addr != 0x2000 || merr.Enum != MEM_READ_UNMAPPED {
		t.Fatalf("wrong fault: %v", merr)
	}
	err = mem.WriteUint(0x5000, 8, PROT_WRITE, 1)
	if merr, ok = err.(*MemError); !ok || merr.Addr != 0x5000 || merr.Enum != MEM_WRITE_UNMAPPED {
		t.Fatalf("wrong write fault: %v", err)
	}
	if _, err := mem.Fetch(0x1000, 16); err == nil {
		t.Fatal("fetched from non-executable memory")
	} else if merr, ok = err.(*MemError); !ok || merr.Enum != MEM_FETCH_PROT {
		t.Fatalf("wrong fetch fault: %v", err)
	}
}

func TestMemAlign(t *testing.T) {
	mem := NewMem(32, binary.BigEndian)
	mem.SetStrictAlign(true)
	if err := mem.MemMapProt(0x1000, 0x1000, PROT_ALL); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.ReadUint(0x1002, 4, PROT_READ); err == nil {
		t.Fatal("unaligned read succeeded on strict memory")
	} else if merr, ok := err.(*MemError); !ok || merr.Enum != MEM_READ_UNALIGNED {
		t.Fatalf("wrong fault: %v", err)
	}
	if err := mem.WriteUint(0x1001, 2, PROT_WRITE, 1); err == nil {
		t.Fatal("unaligned write succeeded on strict memory")
	}
	if err := mem.WriteUint(0x1004, 4, PROT_WRITE, 1); err != nil {
		t.Fatal("aligned write failed:", err)
	}
	if _, err := mem.ReadUint(0x1003, 1, PROT_READ); err != nil {
		t.Fatal("byte access should never be misaligned:", err)
	}
}

func TestMemProtect(t *testing.T) {
	mem := NewMem(32, binary.LittleEndian)
	var events []MapEvent
	mem.WatchMaps(func(ev MapEvent) { events = append(events, ev) })
	if err := mem.MemMapProt(0x1000, 0x3000, PROT_READ|PROT_EXEC); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Fetch(0x2000, 4); err != nil {
		t.Fatal("fetch failed before protect:", err)
	}
	if err := mem.MemProt(0x2000, 0x1000, PROT_READ); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Fetch(0x2000, 4); err == nil {
		t.Fatal("fetch succeeded after removing exec")
	}
	if _, err := mem.Fetch(0x1000, 4); err != nil {
		t.Fatal("fetch failed in the untouched left split:", err)
	}
	maps := mem.Maps()
	if len(maps) != 3 {
		t.Fatalf("expected 3 regions after split, got:\n%s", maps)
	}
	if err := mem.Check(); err != nil {
		t.Fatal(err)
	}
	// fetch window stops where exec stops
	code, err := mem.Fetch(0x1ffe, 16)
	if err != nil || len(code) != 2 {
		t.Fatalf("fetch across exec boundary returned %d bytes, %v", len(code), err)
	}
	if len(events) != 2 || events[1].Kind != PROT_CHANGE || events[1].Prot != PROT_READ {
		t.Fatalf("unexpected map events: %+v", events)
	}
}

func TestMemWatchWrites(t *testing.T) {
	mem := NewMem(64, binary.LittleEndian)
	if err := mem.MemMapProt(0x1000, 0x1000, PROT_ALL); err != nil {
		t.Fatal(err)
	}
	var seen [][2]uint64
	mem.WatchWrites(func(addr, size uint64) {
		// the old bytes must still be visible while the watcher runs
		old := make([]byte, size)
		mem.sim.Read(addr, old, 0)
		if !bytes.Equal(old, make([]byte, size)) {
			t.Error("watcher ran after the write landed")
		}
		seen = append(seen, [2]uint64{addr, size})
	})
	mem.WriteUint(0x1010, 4, PROT_WRITE, 0xdeadbeef)
	mem.MemWrite(0x1020, asdf)
	if len(seen) != 2 || seen[0] != [2]uint64{0x1010, 4} || seen[1] != [2]uint64{0x1020, 4} {
		t.Fatalf("unexpected write notifications: %v", seen)
	}
}

func TestMmapHint(t *testing.T) {
	mem := NewMem(32, binary.LittleEndian)
	a, err := mem.Mmap(0x10000, 0x2000, PROT_READ, false, "a")
	if err != nil || a != 0x10000 {
		t.Fatalf("first mmap landed at %#x: %v", a, err)
	}
	b, err := mem.Mmap(0x10000, 0x1000, PROT_READ, false, "b")
	if err != nil || b != 0x12000 {
		t.Fatalf("second mmap landed at %#x: %v", b, err)
	}
	if p := mem.Find(0x12000); p == nil || p.Desc != "b" {
		t.Fatalf("bad region at 0x12000: %v", p)
	}
	c, err := mem.Mmap(0x11000, 0x1000, PROT_WRITE, true, "c")
	if err != nil || c != 0x11000 {
		t.Fatalf("fixed mmap landed at %#x: %v", c, err)
	}
	if p := mem.Find(0x11000); p.Prot != PROT_WRITE {
		t.Fatal("fixed mmap didn't replace the old mapping")
	}
	if err := mem.MemUnmap(0x10000, 0x3000); err != nil {
		t.Fatal(err)
	}
	if len(mem.Maps()) != 0 {
		t.Fatalf("regions left after unmap:\n%s", mem.Maps())
	}
}

func TestReadStrAt(t *testing.T) {
	mem := NewMem(32, binary.LittleEndian)
	if err := mem.MemMapProt(0x1000, 0x2000, PROT_READ); err != nil {
		t.Fatal(err)
	}
	// straddle a page boundary
	msg := []byte("hello across pages\x00")
	if err := mem.MemWrite(0x1ff8, msg); err != nil {
		t.Fatal(err)
	}
	s, err := mem.ReadStrAt(0x1ff8)
	if err != nil || s != "hello across pages" {
		t.Fatalf("ReadStrAt = %q, %v", s, err)
	}
	// unterminated string runs off the end of the mapping
	full := bytes.Repeat([]byte{'A'}, 0x100)
	mem.MemWrite(0x2f00, full)
	if _, err := mem.ReadStrAt(0x2f00); err == nil {
		t.Fatal("unterminated string read past the mapping")
	}
}

func TestHostStorage(t *testing.T) {
	mem := NewMem(64, binary.LittleEndian)
	mem.SetStorage(NewHostStorage())
	defer mem.Close()
	if err := mem.MemMapProt(0x400000, 0x4000, PROT_READ|PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteUint(0x401ffc, 8, PROT_WRITE, 0x1122334455667788); err != nil {
		t.Fatal(err)
	}
	if v, err := mem.ReadUint(0x401ffc, 8, PROT_READ); err != nil || v != 0x1122334455667788 {
		t.Fatalf("read back %#x, %v", v, err)
	}
	if err := mem.MemUnmap(0x401000, 0x1000); err != nil {
		t.Fatal(err)
	}
	if v, err := mem.ReadUint(0x402000, 4, PROT_READ); err != nil || v != 0x11223344 {
		t.Fatalf("right split lost data: %#x, %v", v, err)
	}
}
