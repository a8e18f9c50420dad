package ndh

import (
	"encoding/hex"
	"testing"

	"github.com/lunixbochs/transcorn/go/dbt"
)

var asmHex = "1b00000402003880040201000004020200000402050000040a02001702020a050a0011f2ff0401000404010101040202388004000305301c48656c6c6f20576f726c6420210a00"

func TestNdhDis(t *testing.T) {
	code, err := hex.DecodeString(asmHex)
	if err != nil {
		t.Fatal(err)
	}
	out, err := (&Dis{}).Dis(code, 0x8000)
	for _, ins := range out {
		t.Log(ins)
	}
	if err != nil {
		t.Fatal(err)
	}
	names := []string{
		"jmpl", "mov", "mov", "mov", "mov", "mov", "test", "inc",
		"inc", "jnz", "mov", "mov", "mov", "mov", "syscall", "end",
	}
	if len(out) != len(names) {
		t.Fatalf("decoded %d instructions, want %d", len(out), len(names))
	}
	for i, ins := range out {
		if ins.Mnemonic() != names[i] {
			t.Errorf("%#x: got %s, want %s", ins.Addr(), ins.Mnemonic(), names[i])
		}
	}
	if s := out[5].(*Insn).String(); s != "mov r2, [r0]" {
		t.Errorf("bad operand string %q", s)
	}
	jnz := out[9].(*Insn)
	if target, ok := jnz.Target(); !ok || target != 0x8017 || jnz.Flow() != dbt.FlowCondJump {
		t.Errorf("jnz target %#x %v, flow %s", target, ok, jnz.Flow())
	}
	if target, _ := out[0].(*Insn).Target(); target != 0x8003 {
		t.Errorf("jmpl target %#x", target)
	}
}

func TestNdhDecodeErrors(t *testing.T) {
	var d Dis
	tests := []struct {
		code    string
		need    int
		invalid bool
		off     int
	}{
		{"", 1, false, 0},
		{"04", 1, false, 0},
		{"0402", 3, false, 0},
		{"04020038", 1, false, 0},
		{"1b00", 1, false, 0},
		{"ff", 0, true, 0},
		{"040b0000", 0, true, 1},
		{"190000", 0, true, 1},
		{"0a0b", 0, true, 1},
		{"04010c05", 0, true, 2},
	}
	for _, test := range tests {
		code, _ := hex.DecodeString(test.code)
		_, err := d.Decode(code, 0x100)
		if err == nil {
			t.Errorf("%s: decoded", test.code)
			continue
		}
		derr, ok := err.(*dbt.DecodeError)
		if !ok {
			t.Errorf("%s: unexpected error type %T", test.code, err)
			continue
		}
		if test.invalid {
			if derr.Kind != dbt.InvalidEncoding || derr.Offset != test.off {
				t.Errorf("%s: got %v, want invalid at +%d", test.code, err, test.off)
			}
		} else if n, ok := dbt.IsNeedMore(err); !ok || n != test.need {
			t.Errorf("%s: got %v, want %d more bytes", test.code, err, test.need)
		}
	}
}

func FuzzNdhDecode(f *testing.F) {
	seed, _ := hex.DecodeString(asmHex)
	f.Add(seed)
	f.Add([]byte{0x04, 0x08, 0x01, 0xff, 0xff})
	f.Add([]byte{0x19})
	core := NewCore(NewMem())
	f.Fuzz(func(t *testing.T, code []byte) {
		ins, err := core.Decode(code, 0x8000)
		if err != nil {
			if _, more := dbt.IsNeedMore(err); more && len(code) >= MaxInsnLen {
				t.Fatalf("asked for more bytes with %d available", len(code))
			}
			return
		}
		if ins.Len() < 1 || ins.Len() > MaxInsnLen || ins.Len() > len(code) {
			t.Fatalf("bad length %d for % x", ins.Len(), code)
		}
		if _, err := core.Bind(ins); err != nil {
			t.Fatalf("decoded %s but bind failed: %v", ins.Mnemonic(), err)
		}
	})
}

func TestNdhOperands(t *testing.T) {
	code, _ := hex.DecodeString(asmHex)
	out, _ := (&Dis{}).Dis(code, 0x8000)
	if len(out) < 10 {
		t.Fatalf("decoded %d instructions", len(out))
	}
	mov := out[5].(*Insn)
	ops := mov.Operands()
	if len(ops) != 2 || ops[0].Kind != dbt.OperandReg || ops[0].Reg != "r2" {
		t.Fatalf("mov operands %+v", ops)
	}
	if ops[1].Kind != dbt.OperandMem || ops[1].Size != 1 || ops[1].Mem.Base != "r0" {
		t.Errorf("mov source %+v", ops[1])
	}
	if mov.FlagsRead() != 0 || mov.FlagsWritten() != 0 {
		t.Errorf("mov flags %#x %#x", mov.FlagsRead(), mov.FlagsWritten())
	}
	if test := out[6].(*Insn); test.FlagsWritten() != FlagZ {
		t.Errorf("test writes %#x", test.FlagsWritten())
	}
	jnz := out[9].(*Insn)
	if jnz.FlagsRead() != FlagZ || jnz.FlagsWritten() != 0 {
		t.Errorf("jnz flags %#x %#x", jnz.FlagsRead(), jnz.FlagsWritten())
	}
	if ops := jnz.Operands(); len(ops) != 1 || ops[0].Kind != dbt.OperandRel || ops[0].Imm != 0x8017 {
		t.Errorf("jnz operands %+v", ops)
	}
}
