// Package fsdisp implements the file-system mount/dispatch layer
// (spec.md §4.8): MBR partition walk with Extended partition chaining,
// VOLUME:/path vs. absolute vs. bare-name resolution, and an open-file
// cache de-duplicating concurrent opens of the same file.
//
// Grounded on original_source's partition/volume model and
// biscuit/src/fs's Superblock_t/Bdev_block_t idiom for on-disk structure
// access, reworked around internal/driver.Driver as the pluggable FS
// backend vtable.
package fsdisp

import "fmt"

const (
	mbrSectorSize  = 512
	partTableOff   = 446
	partEntrySize  = 16
	mbrSignatureOf = 510

	partTypeEmpty    = 0x00
	partTypeExtended = 0x05
	partTypeExtLBA   = 0x0f
)

// Partition describes one primary or logical partition discovered while
// walking the MBR (and any Extended partition chain).
type Partition struct {
	Bootable    bool
	Type        byte
	StartLBA    uint32
	SectorCount uint32
}

// SectorReader reads one 512-byte sector at lba -- the minimal capability
// fsdisp needs from a disk driver to walk partition tables, satisfied by
// internal/ahci.Disk through a thin adapter.
type SectorReader interface {
	ReadSector(lba uint32) ([]byte, error)
}

// WalkMBR reads the boot sector and every Extended partition in its chain,
// returning the flattened list of primary plus logical partitions in disk
// order.
func WalkMBR(disk SectorReader) ([]Partition, error) {
	boot, err := disk.ReadSector(0)
	if err != nil {
		return nil, fmt.Errorf("fsdisp: read MBR: %w", err)
	}
	if len(boot) < mbrSectorSize || boot[mbrSignatureOf] != 0x55 || boot[mbrSignatureOf+1] != 0xAA {
		return nil, fmt.Errorf("fsdisp: missing MBR boot signature")
	}

	var out []Partition
	for i := 0; i < 4; i++ {
		entry := boot[partTableOff+i*partEntrySize : partTableOff+(i+1)*partEntrySize]
		p := parseEntry(entry)
		if p.Type == partTypeEmpty {
			continue
		}
		if p.Type == partTypeExtended || p.Type == partTypeExtLBA {
			logical, err := walkExtendedChain(disk, p.StartLBA, p.StartLBA)
			if err != nil {
				return nil, err
			}
			out = append(out, logical...)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// walkExtendedChain follows the linked list of Extended Boot Records
// starting at ebrLBA, each pointing to one logical partition plus
// (optionally) the next EBR, relative to extendedBase.
func walkExtendedChain(disk SectorReader, ebrLBA, extendedBase uint32) ([]Partition, error) {
	var out []Partition
	next := ebrLBA
	for next != 0 {
		sector, err := disk.ReadSector(next)
		if err != nil {
			return nil, fmt.Errorf("fsdisp: read EBR at %d: %w", next, err)
		}
		first := parseEntry(sector[partTableOff : partTableOff+partEntrySize])
		second := parseEntry(sector[partTableOff+partEntrySize : partTableOff+2*partEntrySize])

		if first.Type != partTypeEmpty {
			first.StartLBA += next
			out = append(out, first)
		}

		if second.Type == partTypeExtended || second.Type == partTypeExtLBA {
			next = extendedBase + second.StartLBA
		} else {
			next = 0
		}
	}
	return out, nil
}

func parseEntry(b []byte) Partition {
	return Partition{
		Bootable:    b[0] == 0x80,
		Type:        b[4],
		StartLBA:    le32(b[8:12]),
		SectorCount: le32(b[12:16]),
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
