// Package binpatch applies binary class patch sets to a clean archive.
//
// A patch set is a zip (optionally LZMA-compressed) of binpatch records, one
// per patched class and side. Each record carries an Adler-32 checksum of the
// clean class it expects and a GDIFF delta producing the patched bytes.
package binpatch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"io"
	"strings"
)

// Patch is one decoded binpatch record.
type Patch struct {
	// Name is the class the patch applies to, as stored in the clean archive.
	Name        string
	SourceClass string
	TargetClass string
	// Exists is false for classes the patch creates from nothing.
	Exists   bool
	Checksum uint32
	Diff     []byte
}

// Path returns the archive entry the patch applies to.
func (p *Patch) Path() string {
	return strings.ReplaceAll(p.Name, ".", "/") + ".class"
}

// PatchApplicationError reports a patch whose expected baseline does not
// match the clean archive.
type PatchApplicationError struct {
	Path string
	Want uint32
	Got  uint32
	// Missing is set when the baseline class is absent altogether.
	Missing bool
	Err     error
}

func (e *PatchApplicationError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("patch %s: baseline class missing from clean archive", e.Path)
	case e.Err != nil:
		return fmt.Sprintf("patch %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("patch %s: checksum mismatch (want %08x, got %08x)", e.Path, e.Want, e.Got)
}

func (e *PatchApplicationError) Unwrap() error { return e.Err }

// Checksum is the baseline hash used by binpatch records.
func Checksum(data []byte) uint32 { return adler32.Checksum(data) }

// DecodePatch parses a binpatch record.
func DecodePatch(data []byte) (*Patch, error) {
	r := bytes.NewReader(data)
	p := &Patch{}
	var err error
	if p.Name, err = readUTF(r); err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	if p.SourceClass, err = readUTF(r); err != nil {
		return nil, fmt.Errorf("read source class: %w", err)
	}
	if p.TargetClass, err = readUTF(r); err != nil {
		return nil, fmt.Errorf("read target class: %w", err)
	}
	exists, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read exists flag: %w", err)
	}
	p.Exists = exists != 0
	if p.Exists {
		if err := binary.Read(r, binary.BigEndian, &p.Checksum); err != nil {
			return nil, fmt.Errorf("read checksum: %w", err)
		}
	}
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("read diff length: %w", err)
	}
	if n < 0 || int(n) > r.Len() {
		return nil, fmt.Errorf("diff length %d exceeds record (%d bytes left)", n, r.Len())
	}
	p.Diff = make([]byte, n)
	if _, err := io.ReadFull(r, p.Diff); err != nil {
		return nil, fmt.Errorf("read diff: %w", err)
	}
	return p, nil
}

// Encode is the inverse of DecodePatch.
func (p *Patch) Encode() []byte {
	var b bytes.Buffer
	writeUTF(&b, p.Name)
	writeUTF(&b, p.SourceClass)
	writeUTF(&b, p.TargetClass)
	if p.Exists {
		b.WriteByte(1)
		_ = binary.Write(&b, binary.BigEndian, p.Checksum)
	} else {
		b.WriteByte(0)
	}
	_ = binary.Write(&b, binary.BigEndian, int32(len(p.Diff)))
	b.Write(p.Diff)
	return b.Bytes()
}

func readUTF(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeUTF(b *bytes.Buffer, s string) {
	_ = binary.Write(b, binary.BigEndian, uint16(len(s)))
	b.WriteString(s)
}
