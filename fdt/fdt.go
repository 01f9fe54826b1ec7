// Package fdt reads and writes flattened device tree blobs.
//
// A blob enters the system once, through NewHandle, and is parsed into a
// Tree whose nodes implement driver.Node.
package fdt

import (
	"encoding/binary"
	"strconv"

	"rdrive-go/errcode"
)

const (
	Magic = 0xd00dfeed

	tokenBeginNode = 1
	tokenEndNode   = 2
	tokenProp      = 3
	tokenNop       = 4
	tokenEnd       = 9

	headerSize     = 40
	minVersion     = 16
	encodedVersion = 17
	maxDepth       = 64
)

// Header is the fixed blob header.
type Header struct {
	Magic           uint32
	TotalSize       uint32
	OffStruct       uint32
	OffStrings      uint32
	OffMemRsvmap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	SizeStrings     uint32
	SizeStruct      uint32
}

// Handle is a validated reference to a device tree blob.
//
// The blob must stay unmodified and reachable for the life of the Handle and
// of every Tree parsed from it: boot code produces the Handle once, before
// secondary CPUs come up, and passes it by value from then on.
type Handle struct {
	blob []byte
	hdr  Header
}

// NewHandle validates the header and block bounds of blob.
func NewHandle(blob []byte) (Handle, error) {
	if len(blob) < headerSize {
		return Handle{}, errcode.FdtErr("fdt", "blob shorter than header")
	}
	var h Header
	fields := []*uint32{
		&h.Magic, &h.TotalSize, &h.OffStruct, &h.OffStrings, &h.OffMemRsvmap,
		&h.Version, &h.LastCompVersion, &h.BootCPUIDPhys, &h.SizeStrings, &h.SizeStruct,
	}
	for i, f := range fields {
		*f = binary.BigEndian.Uint32(blob[i*4:])
	}
	if h.Magic != Magic {
		return Handle{}, errcode.FdtErr("fdt", "bad magic 0x"+strconv.FormatUint(uint64(h.Magic), 16))
	}
	if h.Version < minVersion {
		return Handle{}, errcode.FdtErr("fdt", "unsupported version "+strconv.Itoa(int(h.Version)))
	}
	if int(h.TotalSize) > len(blob) || h.TotalSize < headerSize {
		return Handle{}, errcode.FdtErr("fdt", "total size out of range")
	}
	if !within(h.OffStruct, h.SizeStruct, h.TotalSize) || !within(h.OffStrings, h.SizeStrings, h.TotalSize) {
		return Handle{}, errcode.FdtErr("fdt", "block outside blob")
	}
	return Handle{blob: blob[:h.TotalSize], hdr: h}, nil
}

func within(off, size, total uint32) bool {
	end := uint64(off) + uint64(size)
	return off >= headerSize && end <= uint64(total)
}

// Header returns the decoded header.
func (h Handle) Header() Header { return h.hdr }

// Bytes returns the blob. Callers must not modify it.
func (h Handle) Bytes() []byte { return h.blob }

// Valid reports whether h came from a successful NewHandle.
func (h Handle) Valid() bool { return h.blob != nil }

// Parse decodes the structure block into a Tree.
func (h Handle) Parse() (*Tree, error) {
	if !h.Valid() {
		return nil, errcode.FdtErr("fdt", "invalid handle")
	}
	p := parser{
		st:      h.blob[h.hdr.OffStruct : h.hdr.OffStruct+h.hdr.SizeStruct],
		strings: h.blob[h.hdr.OffStrings : h.hdr.OffStrings+h.hdr.SizeStrings],
	}
	return p.run()
}

// Parse is NewHandle followed by Handle.Parse.
func Parse(blob []byte) (*Tree, error) {
	h, err := NewHandle(blob)
	if err != nil {
		return nil, err
	}
	return h.Parse()
}
