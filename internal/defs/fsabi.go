package defs

// FSFunc identifies one command in the fixed file-system driver ABI every
// Driver of type TypeFileSystem must answer, per spec.md §6.3. A backend
// that does not support a given command returns NOT_IMPLEMENTED rather
// than silently ignoring it.
type FSFunc uint32

const (
	FSGetVolumeInfo FSFunc = iota + 1
	FSSetVolumeInfo
	FSFlush
	FSCreateFolder
	FSDeleteFolder
	FSRenameFolder
	FSOpenFile
	FSOpenNext
	FSCloseFile
	FSDeleteFile
	FSRenameFile
	FSRead
	FSWrite
	FSGetPosition
	FSSetPosition
	FSGetAttributes
	FSSetAttributes
	FSCreatePartition
)
