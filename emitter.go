package formula

import (
	"math"

	"github.com/pkg/errors"
)

// reloc records a RIP-relative memory operand emitted into the text
// section that must be patched once the data section's layout is known.
// offset points at the first byte of the 4-byte displacement field; the
// instruction is assumed to end exactly 4 bytes later, which holds for
// every addressing mode this package emits (movq reg, [rip+disp32]).
type reloc struct {
	offset int
	label  string
}

// dataSection is the emitter state described in the data model: it owns
// the .data buffer along with the two dedup maps (constant bit pattern and
// symbol name, both keyed to a label) that make repeated references to the
// same value or the same variable share one 8-byte slot. Both maps are
// populated on demand while the text section is emitted and drained into
// the data buffer in a single terminal pass.
type dataSection struct {
	text []byte
	data []byte

	constLabels  map[uint64]string
	symbolLabels map[string]string
	// symbolOrder/constOrder make draining deterministic, which keeps
	// emitted code (and therefore tests) reproducible across runs.
	constOrder  []uint64
	symbolOrder []string

	relocs []reloc

	nextLabel int
}

func newDataSection() *dataSection {
	return &dataSection{
		constLabels:  make(map[uint64]string),
		symbolLabels: make(map[string]string),
	}
}

func (d *dataSection) newLabelName(prefix string) string {
	d.nextLabel++
	return prefix + itoa(d.nextLabel)
}

// itoa avoids pulling in strconv for a single hot path used only while
// minting label names, which never need more than base-10 digits of a
// small monotonically increasing counter.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// constLabel returns the (possibly newly created) label for the literal
// value v, deduped by its raw 64-bit bit pattern so that +0.0 and -0.0
// resolve to distinct labels and every NaN payload is preserved.
func (d *dataSection) constLabel(v float64) string {
	bits := math.Float64bits(v)
	if label, ok := d.constLabels[bits]; ok {
		return label
	}
	label := d.newLabelName(".Lconst")
	d.constLabels[bits] = label
	d.constOrder = append(d.constOrder, bits)
	return label
}

// symbolLabelFor returns the (possibly newly created) label bound to name.
// It does not itself decide what value ends up there — that is resolved
// against the live symbol table in drain, at emission time.
func (d *dataSection) symbolLabelFor(name string) string {
	if label, ok := d.symbolLabels[name]; ok {
		return label
	}
	label := d.newLabelName(".Lsym")
	d.symbolLabels[name] = label
	d.symbolOrder = append(d.symbolOrder, name)
	return label
}

// emit appends raw bytes to the text section and returns the offset they
// were written at.
func (d *dataSection) emit(bytes ...byte) int {
	off := len(d.text)
	d.text = append(d.text, bytes...)
	return off
}

// textLen reports the current length of the text section.
func (d *dataSection) textLen() int {
	return len(d.text)
}

// recordReloc notes that the 4-byte displacement field at offset must be
// patched to point at label once the data section address is known.
func (d *dataSection) recordReloc(offset int, label string) {
	d.relocs = append(d.relocs, reloc{offset: offset, label: label})
}

// align8 rounds n up to the next multiple of 8.
func align8(n int) int {
	return (n + 7) &^ 7
}

// drain performs the terminal pass described in the data section pass: it
// binds every pending label to an offset in .data (placed immediately
// after .text, 8-byte aligned), writes each label's 8-byte little-endian
// payload, and patches every RIP-relative reference recorded during text
// emission. Symbol values are snapshotted from symbols at this moment, per
// the "symbol lifetime vs emission time" design note; a name absent from
// symbols at drain time contributes 0.0, matching the tree-walking
// evaluator's default.
//
// It returns an error only if a relocation refers to a label that was
// never bound to a value, or if a relocation's displacement field lies
// outside the image — both invariant breaches, since every label minted
// by constLabel/symbolLabelFor is always later written to .data here and
// every relocation points into the text already emitted.
func (d *dataSection) drain(symbols *SymbolTable) ([]byte, error) {
	dataBase := align8(len(d.text))
	offsets := make(map[string]int, len(d.constOrder)+len(d.symbolOrder))

	data := make([]byte, 0, len(d.constOrder)*8+len(d.symbolOrder)*8)
	for _, bits := range d.constOrder {
		label := d.constLabels[bits]
		offsets[label] = dataBase + len(data)
		data = appendLE64(data, bits)
	}
	for _, name := range d.symbolOrder {
		label := d.symbolLabels[name]
		v := symbols.Get(name)
		offsets[label] = dataBase + len(data)
		data = appendLE64(data, math.Float64bits(v))
	}

	image := make([]byte, dataBase+len(data))
	copy(image, d.text)
	copy(image[dataBase:], data)

	for _, r := range d.relocs {
		target, ok := offsets[r.label]
		if !ok {
			return nil, newError(KindInvariant, "resolve data label", errors.Errorf("unresolved data label %q", r.label))
		}
		if r.offset+4 > len(image) {
			return nil, newError(KindInvariant, "check relocation bounds", errors.Errorf("relocation at %d out of bounds", r.offset))
		}
		// RIP-relative displacement: target minus the address of the byte
		// immediately following the 4-byte displacement field. Both text
		// and data live in the same contiguous image, so this is exact
		// regardless of where the image is ultimately mapped in memory.
		disp := int32(target - (r.offset + 4))
		putLE32(image[r.offset:], uint32(disp))
	}

	d.text = image[:dataBase]
	return image, nil
}

func appendLE64(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func putLE32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}
