package classfile

import "encoding/binary"

// opLen holds instruction lengths including the opcode byte. Zero marks an
// undefined opcode; -1 marks a variable-length instruction.
var opLen = func() [256]int8 {
	var t [256]int8
	set := func(from, to int, n int8) {
		for op := from; op <= to; op++ {
			t[op] = n
		}
	}
	set(0x00, 0x0f, 1)
	t[0x10] = 2 // bipush
	t[0x11] = 3 // sipush
	t[0x12] = 2 // ldc
	set(0x13, 0x14, 3)
	set(0x15, 0x19, 2) // xload
	set(0x1a, 0x35, 1)
	set(0x36, 0x3a, 2) // xstore
	set(0x3b, 0x83, 1)
	t[0x84] = 3 // iinc
	set(0x85, 0x98, 1)
	set(0x99, 0xa8, 3) // branches
	t[0xa9] = 2        // ret
	t[0xaa] = -1       // tableswitch
	t[0xab] = -1       // lookupswitch
	set(0xac, 0xb1, 1)
	set(0xb2, 0xb8, 3)
	t[0xb9] = 5 // invokeinterface
	t[0xba] = 5 // invokedynamic
	t[0xbb] = 3
	t[0xbc] = 2
	t[0xbd] = 3
	set(0xbe, 0xbf, 1)
	set(0xc0, 0xc1, 3)
	set(0xc2, 0xc3, 1)
	t[0xc4] = -1 // wide
	t[0xc5] = 4  // multianewarray
	set(0xc6, 0xc7, 3)
	set(0xc8, 0xc9, 5)
	t[0xca] = 1
	set(0xfe, 0xff, 1)
	return t
}()

// cpOperand reports whether op carries a u16 constant pool index at pc+1.
func cpOperand(op byte) bool {
	switch op {
	case 0x13, 0x14, // ldc_w, ldc2_w
		0xb2, 0xb3, 0xb4, 0xb5, // field access
		0xb6, 0xb7, 0xb8, 0xb9, 0xba, // invokes
		0xbb, 0xbd, 0xc0, 0xc1, 0xc5: // new, anewarray, checkcast, instanceof, multianewarray
		return true
	}
	return false
}

func instructionLength(code []byte, pc int) (int, error) {
	op := code[pc]
	n := int(opLen[op])
	switch n {
	case 0:
		return 0, malformed("undefined opcode %#x at %d", op, pc)
	case -1:
		switch op {
		case 0xc4:
			if pc+1 >= len(code) {
				return 0, malformed("truncated wide at %d", pc)
			}
			if code[pc+1] == 0x84 {
				n = 6
			} else {
				n = 4
			}
		case 0xaa, 0xab:
			pad := (4 - (pc+1)%4) % 4
			base := pc + 1 + pad
			if base+12 > len(code) {
				return 0, malformed("truncated switch at %d", pc)
			}
			if op == 0xaa {
				low := int32(binary.BigEndian.Uint32(code[base+4:]))
				high := int32(binary.BigEndian.Uint32(code[base+8:]))
				if high < low {
					return 0, malformed("tableswitch at %d has high < low", pc)
				}
				n = 1 + pad + 12 + int(high-low+1)*4
			} else {
				pairs := int32(binary.BigEndian.Uint32(code[base+4:]))
				if pairs < 0 {
					return 0, malformed("lookupswitch at %d has negative npairs", pc)
				}
				n = 1 + pad + 8 + int(pairs)*8
			}
		}
	}
	if pc+n > len(code) {
		return 0, malformed("instruction %#x at %d overruns code length %d", op, pc, len(code))
	}
	return n, nil
}

// remapInstructions returns a copy of code with every constant pool operand
// passed through fn. ldc keeps its one-byte operand, so a remapped index above
// 255 is an error.
func remapInstructions(code []byte, fn func(uint16) (uint16, error)) ([]byte, error) {
	out := append([]byte(nil), code...)
	for pc := 0; pc < len(code); {
		n, err := instructionLength(code, pc)
		if err != nil {
			return nil, err
		}
		op := code[pc]
		switch {
		case op == 0x12:
			idx, err := fn(uint16(code[pc+1]))
			if err != nil {
				return nil, err
			}
			if idx > 0xFF {
				return nil, malformed("ldc at %d needs constant %d, beyond one-byte range", pc, idx)
			}
			out[pc+1] = byte(idx)
		case cpOperand(op):
			idx, err := fn(binary.BigEndian.Uint16(code[pc+1:]))
			if err != nil {
				return nil, err
			}
			binary.BigEndian.PutUint16(out[pc+1:], idx)
		}
		pc += n
	}
	return out, nil
}

func copyVerificationType(r *reader, w *writer, fn func(uint16) (uint16, error)) error {
	tag := r.u8()
	w.u8(tag)
	switch tag {
	case 7:
		idx, err := fn(r.u16())
		if err != nil {
			return err
		}
		w.u16(idx)
	case 8:
		w.u16(r.u16())
	default:
		if tag > 8 && r.err == nil {
			return malformed("unknown verification type tag %d", tag)
		}
	}
	return r.err
}

// remapStackMap rewrites Object_variable_info class references.
func remapStackMap(info []byte, fn func(uint16) (uint16, error)) ([]byte, error) {
	r := newReader(info)
	w := &writer{}
	n := int(r.u16())
	w.u16(uint16(n))
	vt := func(k int) error {
		for i := 0; i < k; i++ {
			if err := copyVerificationType(r, w, fn); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < n && r.err == nil; i++ {
		ft := r.u8()
		w.u8(ft)
		var err error
		switch {
		case ft <= 63:
		case ft <= 127:
			err = vt(1)
		case ft == 247:
			w.u16(r.u16())
			err = vt(1)
		case ft >= 248 && ft <= 251:
			w.u16(r.u16())
		case ft >= 252 && ft <= 254:
			w.u16(r.u16())
			err = vt(int(ft) - 251)
		case ft == 255:
			w.u16(r.u16())
			locals := int(r.u16())
			w.u16(uint16(locals))
			if err = vt(locals); err == nil {
				stack := int(r.u16())
				w.u16(uint16(stack))
				err = vt(stack)
			}
		default:
			err = malformed("reserved stack map frame type %d", ft)
		}
		if err != nil {
			return nil, err
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return w.Bytes(), nil
}

// remapLocalVariables rewrites LocalVariableTable and LocalVariableTypeTable.
func remapLocalVariables(info []byte, fn func(uint16) (uint16, error)) ([]byte, error) {
	r := newReader(info)
	w := &writer{}
	n := int(r.u16())
	w.u16(uint16(n))
	for i := 0; i < n && r.err == nil; i++ {
		w.u16(r.u16())
		w.u16(r.u16())
		name, err := fn(r.u16())
		if err != nil {
			return nil, err
		}
		desc, err := fn(r.u16())
		if err != nil {
			return nil, err
		}
		w.u16(name)
		w.u16(desc)
		w.u16(r.u16())
	}
	if r.err != nil {
		return nil, r.err
	}
	return w.Bytes(), nil
}
