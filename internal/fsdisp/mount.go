package fsdisp

import (
	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/driver"
	"github.com/Jango73/EXOS-sub006/internal/fsdisp/ext2stub"
	"github.com/Jango73/EXOS-sub006/internal/fsdisp/xfs"
)

// Partition type bytes MountDiskPartitions dispatches on, the MBR
// convention FileSys.c's FSID_* switch reads.
const (
	partTypeFAT16Small = 0x04
	partTypeFAT16Large = 0x06
	partTypeNTFS       = 0x07
	partTypeFAT32      = 0x0B
	partTypeFAT32LBA   = 0x0C
	partTypeEXOS       = 0x7F // EXOS's custom on-disk format (xfs package)
	partTypeLinuxEXT2  = 0x83
)

// partitionSectorReader offsets a SectorReader by a partition's StartLBA,
// so a per-FS mount routine addresses sector 0 as the partition's own boot
// sector rather than needing to know its disk-relative offset.
type partitionSectorReader struct {
	disk SectorReader
	base uint32
}

func (r partitionSectorReader) ReadSector(lba uint32) ([]byte, error) {
	return r.disk.ReadSector(r.base + lba)
}

// blockDeviceAdapter satisfies xfs.BlockDevice over a SectorReader, since
// xfs addresses fixed 512-byte blocks and fsdisp only offers sector reads
// (writes route through the disk driver directly, mount only ever reads).
type blockDeviceAdapter struct {
	reader SectorReader
}

func (a blockDeviceAdapter) ReadBlock(index uint32, buf []byte) defs.Err_t {
	sector, err := a.reader.ReadSector(index)
	if err != nil {
		return defs.FS_BADSECTOR
	}
	copy(buf, sector)
	return defs.SUCCESS
}

func (a blockDeviceAdapter) WriteBlock(index uint32, buf []byte) defs.Err_t {
	return defs.NOT_IMPLEMENTED
}

// MountDiskPartitions walks disk's MBR (and any Extended chain, via
// WalkMBR) and mounts each discovered partition onto dispatcher under a
// sequential volume label starting at "C", per spec.md §4.8's
// mount_disk_partitions(disk, mbr_table, base). The per-FS mount routine is
// chosen by partition type byte, mirroring FileSys.c's
// MountDiskPartitions switch over FSID_*. Returns one Err_t per discovered
// partition, in partition order, so a caller can log per-volume failures
// without aborting the whole walk.
func MountDiskPartitions(disk SectorReader, dispatcher *Dispatcher, base uint32) []defs.Err_t {
	partitions, err := WalkMBR(disk)
	if err != nil {
		return []defs.Err_t{defs.FS_BADSECTOR}
	}

	results := make([]defs.Err_t, 0, len(partitions))
	volume := byte('C')
	for _, p := range partitions {
		reader := partitionSectorReader{disk: disk, base: base + p.StartLBA}
		label := string(volume)

		var drv driver.Driver
		var mountErr defs.Err_t

		switch p.Type {
		case partTypeFAT16Small, partTypeFAT16Large:
			drv, mountErr = mountFAT16(reader, p)
		case partTypeFAT32, partTypeFAT32LBA:
			drv, mountErr = mountFAT32(reader, p)
		case partTypeNTFS:
			drv, mountErr = mountNTFS(reader, p)
		case partTypeEXOS:
			drv, mountErr = mountXFS(reader, label)
		case partTypeLinuxEXT2:
			drv, mountErr = mountEXT2(label)
		default:
			mountErr = defs.NOT_IMPLEMENTED
		}

		if mountErr == defs.SUCCESS {
			dispatcher.Mount(label, drv)
			volume++
		}
		results = append(results, mountErr)
	}
	return results
}

// mountFAT16/mountFAT32/mountNTFS have no Go-native backend in this
// module -- only EXT2-stub and XFS are implemented (spec.md §4.8) -- so
// they report NOT_IMPLEMENTED the way FileSys.c's default case logs and
// skips an unrecognized partition type, without a registered driver.
func mountFAT16(reader SectorReader, p Partition) (driver.Driver, defs.Err_t) {
	return nil, defs.NOT_IMPLEMENTED
}

func mountFAT32(reader SectorReader, p Partition) (driver.Driver, defs.Err_t) {
	return nil, defs.NOT_IMPLEMENTED
}

func mountNTFS(reader SectorReader, p Partition) (driver.Driver, defs.Err_t) {
	return nil, defs.NOT_IMPLEMENTED
}

// mountXFS mounts the EXOS custom on-disk format at the partition's base,
// the Go-native counterpart to FileSys.c's MountPartition_XFS.
func mountXFS(reader SectorReader, label string) (driver.Driver, defs.Err_t) {
	dev := blockDeviceAdapter{reader: reader}
	fsys, err := xfs.Mount(dev)
	if err != defs.SUCCESS {
		return nil, err
	}
	return xfs.NewDriver(label, fsys), defs.SUCCESS
}

// mountEXT2 mounts a fresh in-memory EXT2-stub volume, the Go-native
// counterpart to FileSys.c's MountPartition_EXT2 -- this stub never reads
// the backing partition's bytes, since it has no real on-disk layout.
func mountEXT2(label string) (driver.Driver, defs.Err_t) {
	fs := ext2stub.New()
	return ext2stub.NewDriver(label, fs), defs.SUCCESS
}

// DecomposePath splits p into its path components, per spec.md §4.8's
// decompose_path(p): a root/absolute path yields an empty leading node
// (mirroring FileSys.c's DecompPath, which emits Component=="" the
// instant it sees a leading '/'), while a bare relative name yields a
// single node with no splitting at all.
func DecomposePath(p string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
			if i == len(p) {
				break
			}
		}
	}
	return out
}
