package fs

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Superblock_t is the first block of group 0, read once at mount and
// kept resident for the lifetime of the filesystem. Field accessors
// follow the teacher's fieldr/fieldw pattern in fs/super.go: raw
// byte-offset reads/writes into a fixed-size block rather than an
// unsafe-pointer cast, so the on-disk layout is explicit and portable.
type Superblock_t struct {
	data [1024]byte
}

const (
	sbMagic          = 0
	sbInodesCount     = 4
	sbBlocksCount     = 8
	sbFirstDataBlock  = 12
	sbBlocksPerGroup  = 16
	sbInodesPerGroup  = 20
	sbInodeSize       = 24
	sbFreeBlocksCount = 28
	sbFreeInodesCount = 32
	sbUUID            = 36 // 16 bytes
)

const Ext2Magic = 0xEF53

func (sb *Superblock_t) fieldr(off int) uint32 {
	return binary.LittleEndian.Uint32(sb.data[off:])
}

func (sb *Superblock_t) fieldw(off int, v uint32) {
	binary.LittleEndian.PutUint32(sb.data[off:], v)
}

func (sb *Superblock_t) Magic() uint32           { return sb.fieldr(sbMagic) }
func (sb *Superblock_t) InodesCount() uint32     { return sb.fieldr(sbInodesCount) }
func (sb *Superblock_t) BlocksCount() uint32     { return sb.fieldr(sbBlocksCount) }
func (sb *Superblock_t) FirstDataBlock() uint32  { return sb.fieldr(sbFirstDataBlock) }
func (sb *Superblock_t) BlocksPerGroup() uint32  { return sb.fieldr(sbBlocksPerGroup) }
func (sb *Superblock_t) InodesPerGroup() uint32  { return sb.fieldr(sbInodesPerGroup) }
func (sb *Superblock_t) InodeSize() uint32       { return sb.fieldr(sbInodeSize) }
func (sb *Superblock_t) FreeBlocksCount() uint32 { return sb.fieldr(sbFreeBlocksCount) }
func (sb *Superblock_t) FreeInodesCount() uint32 { return sb.fieldr(sbFreeInodesCount) }

func (sb *Superblock_t) SetFreeBlocksCount(v uint32) { sb.fieldw(sbFreeBlocksCount, v) }
func (sb *Superblock_t) SetFreeInodesCount(v uint32) { sb.fieldw(sbFreeInodesCount, v) }

// UUID identifies this filesystem instance, analogous to ext2's
// s_uuid[16]. mkfs stamps a freshly generated UUID (v4, google/uuid) so
// two filesystem images never collide in tooling that keys off it.
func (sb *Superblock_t) UUID() uuid.UUID {
	var u uuid.UUID
	copy(u[:], sb.data[sbUUID:sbUUID+16])
	return u
}

func (sb *Superblock_t) SetUUID(u uuid.UUID) {
	copy(sb.data[sbUUID:sbUUID+16], u[:])
}

// Bytes/FromBytes let the block I/O layer treat a Superblock_t as a
// plain BSIZE-aligned buffer for reading and writing block 1.
func (sb *Superblock_t) Bytes() []byte { return sb.data[:] }

func (sb *Superblock_t) FromBytes(b []byte) { copy(sb.data[:], b) }

// MkSuperblock builds a fresh superblock for nblocks/ninodes, grounded
// on ext2fs_readsb's field layout in original_source/kernel/ext2.c but
// generated rather than read, for use by the in-process formatter
// tests exercise.
func MkSuperblock(nblocks, ninodes uint32, blocksPerGroup, inodesPerGroup uint32) *Superblock_t {
	sb := &Superblock_t{}
	sb.fieldw(sbMagic, Ext2Magic)
	sb.fieldw(sbInodesCount, ninodes)
	sb.fieldw(sbBlocksCount, nblocks)
	sb.fieldw(sbFirstDataBlock, 1)
	sb.fieldw(sbBlocksPerGroup, blocksPerGroup)
	sb.fieldw(sbInodesPerGroup, inodesPerGroup)
	sb.fieldw(sbInodeSize, 128)
	sb.SetUUID(uuid.New())
	return sb
}

// GroupDesc_t is a single block-group descriptor: the three bitmaps and
// table this group owns, plus its free counts.
type GroupDesc_t struct {
	BlockBitmap     uint32
	InodeBitmap     uint32
	InodeTable      uint32
	FreeBlocksCount uint16
	FreeInodesCount uint16
}

const groupDescSize = 32

func (g *GroupDesc_t) Marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], g.BlockBitmap)
	binary.LittleEndian.PutUint32(b[4:], g.InodeBitmap)
	binary.LittleEndian.PutUint32(b[8:], g.InodeTable)
	binary.LittleEndian.PutUint16(b[12:], g.FreeBlocksCount)
	binary.LittleEndian.PutUint16(b[14:], g.FreeInodesCount)
}

func (g *GroupDesc_t) Unmarshal(b []byte) {
	g.BlockBitmap = binary.LittleEndian.Uint32(b[0:])
	g.InodeBitmap = binary.LittleEndian.Uint32(b[4:])
	g.InodeTable = binary.LittleEndian.Uint32(b[8:])
	g.FreeBlocksCount = binary.LittleEndian.Uint16(b[12:])
	g.FreeInodesCount = binary.LittleEndian.Uint16(b[14:])
}
