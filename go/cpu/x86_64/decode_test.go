package x86_64

import (
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/lunixbochs/transcorn/go/dbt"
)

const disAddr = 0x1000

var disTests = []struct {
	hex  string
	text string
}{
	{"90", "nop"},
	{"c3", "ret"},
	{"0f05", "syscall"},
	{"cc", "int3"},
	{"f4", "hlt"},
	{"55", "push rbp"},
	{"4155", "push r13"},
	{"5d", "pop rbp"},
	{"4889e5", "mov rbp, rsp"},
	{"31c0", "xor eax, eax"},
	{"4801d8", "add rax, rbx"},
	{"83c003", "add eax, 0x3"},
	{"b805000000", "mov eax, 0x5"},
	{"48b88877665544332211", "mov rax, 0x1122334455667788"},
	{"4883ec10", "sub rsp, 0x10"},
	{"488b4308", "mov rax, qword ptr [rbx+0x8]"},
	{"488b44cb10", "mov rax, qword ptr [rbx+rcx*8+0x10]"},
	{"8b0424", "mov eax, dword ptr [rsp]"},
	{"48897df8", "mov qword ptr [rbp-0x8], rdi"},
	{"488b0510000000", "mov rax, qword ptr [rip+0x10]"},
	{"64488b042528000000", "mov rax, qword ptr fs:[0x28]"},
	{"0fb607", "movzx eax, byte ptr [rdi]"},
	{"4863c7", "movsxd rax, edi"},
	{"88e0", "mov al, ah"},
	{"4088f0", "mov al, sil"},
	{"4488c0", "mov al, r8b"},
	{"6689d8", "mov ax, bx"},
	{"85c0", "test eax, eax"},
	{"0fafc1", "imul eax, ecx"},
	{"6bc00a", "imul eax, eax, 0xa"},
	{"0f94c0", "setz al"},
	{"0f44c1", "cmovz eax, ecx"},
	{"0fc8", "bswap eax"},
	{"f00fc103", "lock xadd dword ptr [rbx], eax"},
	{"48f7f1", "div rcx"},
	{"48c1e004", "shl rax, 0x4"},
	{"d3e8", "shr eax, cl"},
	{"e8fb0f0000", "call 0x2000"},
	{"ebfe", "jmp 0x1000"},
	{"7405", "jz 0x1007"},
	{"0f8400010000", "jz 0x1106"},
	{"7cfe", "jl 0x1000"},
}

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDisassembly(t *testing.T) {
	var d Decoder
	for _, test := range disTests {
		code := mustHex(t, test.hex)
		ins, err := d.Decode(code, disAddr)
		require.NoError(t, err, test.hex)
		assert.Equal(t, len(code), ins.Len(), test.hex)
		assert.Equal(t, test.text, ins.(*Insn).String(), test.hex)

		ref, err := x86asm.Decode(code, 64)
		require.NoError(t, err, test.hex)
		assert.Equal(t, test.text, x86asm.IntelSyntax(ref, disAddr, nil), "x86asm "+test.hex)
	}
}

func TestDecodeFlow(t *testing.T) {
	var d Decoder
	tests := []struct {
		hex    string
		flow   dbt.Flow
		target uint64
	}{
		{"e8fb0f0000", dbt.FlowCall, 0x2000},
		{"ebfe", dbt.FlowJump, 0x1000},
		{"7405", dbt.FlowCondJump, 0x1007},
		{"e2fe", dbt.FlowCondJump, 0x1000},
		{"ffe0", dbt.FlowIndirect, 0},
		{"c3", dbt.FlowRet, 0},
		{"0f05", dbt.FlowTrap, 0},
		{"cd80", dbt.FlowTrap, 0},
		{"4801d8", dbt.FlowNone, 0},
	}
	for _, test := range tests {
		ins, err := d.Decode(mustHex(t, test.hex), disAddr)
		require.NoError(t, err, test.hex)
		assert.Equal(t, test.flow, ins.Flow(), test.hex)
		target, ok := ins.Target()
		assert.Equal(t, test.target != 0, ok, test.hex)
		assert.Equal(t, test.target, target, test.hex)
	}
}

func TestDecodeErrors(t *testing.T) {
	var d Decoder
	tests := []struct {
		name   string
		hex    string
		kind   dbt.DecodeKind
		offset int
		need   int
	}{
		{"empty", "", dbt.NeedMoreBytes, 0, 1},
		{"rex alone", "48", dbt.NeedMoreBytes, 0, 1},
		{"escape alone", "0f", dbt.NeedMoreBytes, 0, 1},
		{"modrm", "8b", dbt.NeedMoreBytes, 0, 1},
		{"sib", "8b04", dbt.NeedMoreBytes, 0, 1},
		{"imm32", "b8", dbt.NeedMoreBytes, 0, 4},
		{"imm64", "48b8", dbt.NeedMoreBytes, 0, 8},
		{"short imm64", "48b8010203", dbt.NeedMoreBytes, 0, 5},
		{"endbr64 tail", "f30f1e", dbt.NeedMoreBytes, 0, 1},
		{"push es", "06", dbt.InvalidEncoding, 0, 0},
		{"aaa", "37", dbt.InvalidEncoding, 0, 0},
		{"prefixed aaa", "6637", dbt.InvalidEncoding, 1, 0},
		{"3dnow", "0f0f", dbt.InvalidEncoding, 1, 0},
		{"group hole", "c6c800", dbt.InvalidEncoding, 1, 0},
		{"lea register", "8dc0", dbt.InvalidEncoding, 1, 0},
		{"lock register", "f001c0", dbt.InvalidEncoding, 0, 0},
		{"lock nop", "f090", dbt.InvalidEncoding, 0, 0},
		{"call rel16", "66e800000000", dbt.InvalidEncoding, 0, 0},
		{"bad endbr", "f30f1efb", dbt.InvalidEncoding, 3, 0},
		{"too long", "6666666666666666666666666666669090", dbt.InvalidEncoding, 15, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := d.Decode(mustHex(t, test.hex), disAddr)
			require.Error(t, err)
			derr, ok := err.(*dbt.DecodeError)
			require.True(t, ok, "%T", err)
			assert.Equal(t, test.kind, derr.Kind)
			if test.kind == dbt.NeedMoreBytes {
				assert.Equal(t, test.need, derr.Need)
			} else {
				assert.Equal(t, test.offset, derr.Offset)
			}
		})
	}
}

// every strict prefix of a valid instruction asks for more bytes
func checkTruncations(t testing.TB, d Decoder, code []byte, n int) {
	for k := 0; k < n; k++ {
		_, err := d.Decode(code[:k], disAddr)
		if _, ok := dbt.IsNeedMore(err); !ok {
			t.Fatalf("% x truncated to %d: got %v, want need more", code[:n], k, err)
		}
	}
}

func TestDecodeLengthMatchesReference(t *testing.T) {
	var d Decoder
	rng := rand.New(rand.NewSource(1))
	code := make([]byte, 16)
	checked := 0
	for i := 0; i < 50000; i++ {
		rng.Read(code)
		ins, err := d.Decode(code, disAddr)
		if err != nil {
			continue
		}
		checkTruncations(t, d, code, ins.Len())
		ref, err := x86asm.Decode(code, 64)
		if err != nil {
			continue
		}
		checked++
		if ref.Len != ins.Len() {
			t.Fatalf("% x: length %d, x86asm says %d (%s)", code[:ins.Len()], ins.Len(), ref.Len, ins)
		}
	}
	assert.NotZero(t, checked)
}

func FuzzDecode(f *testing.F) {
	for _, test := range disTests {
		b, _ := hex.DecodeString(test.hex)
		f.Add(b)
	}
	core := NewCore(NewMem())
	f.Fuzz(func(t *testing.T, code []byte) {
		ins, err := core.Decode(code, disAddr)
		if err != nil {
			if _, ok := err.(*dbt.DecodeError); !ok {
				t.Fatalf("unexpected error type %T", err)
			}
			return
		}
		n := ins.Len()
		if n < 1 || n > maxInsnLen || n > len(code) {
			t.Fatalf("bad length %d for % x", n, code)
		}
		checkTruncations(t, core.Decoder, code, n)
		again, err := core.Decode(code, disAddr)
		if err != nil || again.(*Insn).String() != ins.(*Insn).String() {
			t.Fatalf("decode of % x isn't deterministic", code)
		}
		if _, err := core.Bind(ins); err != nil {
			t.Fatalf("bind %s: %v", ins, err)
		}
	})
}

func TestDecodeSSE(t *testing.T) {
	var d Decoder
	tests := []struct {
		hex  string
		text string
	}{
		{"660f6fc1", "movdqa xmm0, xmm1"},
		{"f30f6f07", "movdqu xmm0, xmmword ptr [rdi]"},
		{"0f2811", "movaps xmm2, xmmword ptr [rcx]"},
		{"0f11c8", "movups xmm0, xmm1"},
		{"660fefc0", "pxor xmm0, xmm0"},
		{"66450febc9", "por xmm9, xmm9"},
		{"660f74c8", "pcmpeqb xmm1, xmm0"},
		{"660fd7c0", "pmovmskb eax, xmm0"},
		{"660f6ec7", "movd xmm0, edi"},
		{"66480f6ec7", "movq xmm0, rdi"},
		{"660f7ec0", "movd eax, xmm0"},
		{"f30f7e07", "movq xmm0, qword ptr [rdi]"},
		{"660fd607", "movq qword ptr [rdi], xmm0"},
	}
	for _, test := range tests {
		code := mustHex(t, test.hex)
		ins, err := d.Decode(code, disAddr)
		require.NoError(t, err, test.hex)
		assert.Equal(t, len(code), ins.Len(), test.hex)
		assert.Equal(t, test.text, ins.(*Insn).String(), test.hex)
		ref, err := x86asm.Decode(code, 64)
		require.NoError(t, err, test.hex)
		assert.Equal(t, ref.Len, ins.Len(), "x86asm "+test.hex)
	}
}

// SSE outside the supported integer subset decodes as a clean invalid
// encoding, which the engine reports as an invalid opcode.
func TestDecodeSSEUnsupported(t *testing.T) {
	var d Decoder
	tests := []struct {
		name   string
		hex    string
		offset int
	}{
		{"addps", "0f58c1", 1},
		{"mmx movq", "0f6fc1", 1},
		{"movupd", "660f10c1", 2},
		{"movss", "f30f10c1", 2},
		{"movsd", "f20f10c1", 2},
		{"pxor with rep", "f3660fefc0", 3},
		{"pmovmskb memory", "660fd700", 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := d.Decode(mustHex(t, test.hex), disAddr)
			require.Error(t, err)
			derr, ok := err.(*dbt.DecodeError)
			require.True(t, ok, "%T", err)
			assert.Equal(t, dbt.InvalidEncoding, derr.Kind)
			assert.Equal(t, test.offset, derr.Offset)
		})
	}
}

func TestInsnOperandsAndFlags(t *testing.T) {
	var d Decoder
	decode := func(s string) *Insn {
		ins, err := d.Decode(mustHex(t, s), disAddr)
		require.NoError(t, err, s)
		return ins.(*Insn)
	}

	// adc rax, rbx
	adc := decode("4811d8")
	assert.EqualValues(t, FlagCF, adc.FlagsRead())
	assert.EqualValues(t, arithFlags, adc.FlagsWritten())
	assert.Equal(t, []dbt.Operand{
		{Kind: dbt.OperandReg, Size: 8, Reg: "rax"},
		{Kind: dbt.OperandReg, Size: 8, Reg: "rbx"},
	}, adc.Operands())

	// mov rax, qword ptr [rbx+rcx*8+0x10]
	mov := decode("488b44cb10")
	assert.Zero(t, mov.FlagsRead())
	assert.Zero(t, mov.FlagsWritten())
	ops := mov.Operands()
	require.Len(t, ops, 2)
	assert.Equal(t, dbt.OperandMem, ops[1].Kind)
	assert.Equal(t, 8, ops[1].Size)
	assert.Equal(t, dbt.MemRef{Base: "rbx", Index: "rcx", Scale: 8, Disp: 0x10}, ops[1].Mem)

	// jz 0x1007
	jz := decode("7405")
	assert.EqualValues(t, FlagZF, jz.FlagsRead())
	assert.Zero(t, jz.FlagsWritten())
	assert.Equal(t, []dbt.Operand{{Kind: dbt.OperandRel, Size: jz.Args[0].Size, Imm: 0x1007}}, jz.Operands())

	// mov rax, qword ptr fs:[0x28]
	fs := decode("64488b042528000000")
	assert.Equal(t, dbt.MemRef{Seg: "fs", Disp: 0x28}, fs.Operands()[1].Mem)

	// pxor xmm0, xmm0
	assert.Equal(t, "xmm0", decode("660fefc0").Operands()[0].Reg)
}
