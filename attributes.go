package smbpoll

import (
	"io/fs"
	"strings"
)

// MS-FSCC file attribute bits, as reported in directory listings.
const (
	FILE_ATTRIBUTE_READONLY            = 0x00000001
	FILE_ATTRIBUTE_HIDDEN              = 0x00000002
	FILE_ATTRIBUTE_SYSTEM              = 0x00000004
	FILE_ATTRIBUTE_DIRECTORY           = 0x00000010
	FILE_ATTRIBUTE_ARCHIVE             = 0x00000020
	FILE_ATTRIBUTE_DEVICE              = 0x00000040
	FILE_ATTRIBUTE_NORMAL              = 0x00000080 // only valid alone
	FILE_ATTRIBUTE_TEMPORARY           = 0x00000100
	FILE_ATTRIBUTE_SPARSE_FILE         = 0x00000200
	FILE_ATTRIBUTE_REPARSE_POINT       = 0x00000400 // symlink or junction
	FILE_ATTRIBUTE_COMPRESSED          = 0x00000800
	FILE_ATTRIBUTE_OFFLINE             = 0x00001000 // content moved to cold storage
	FILE_ATTRIBUTE_NOT_CONTENT_INDEXED = 0x00002000
	FILE_ATTRIBUTE_ENCRYPTED           = 0x00004000
)

// WindowsAttributes is the attribute bitmask of a polled entry. It is what
// FileDescriptor.Sys returns.
type WindowsAttributes uint32

// Has reports whether every bit of mask is set.
func (a WindowsAttributes) Has(mask WindowsAttributes) bool {
	return mask != 0 && a&mask == mask
}

// IsDirectory reports whether the entry is a directory.
func (a WindowsAttributes) IsDirectory() bool {
	return a.Has(FILE_ATTRIBUTE_DIRECTORY)
}

// attributeNames lists the bits String spells out, in display order.
var attributeNames = []struct {
	bit  WindowsAttributes
	name string
}{
	{FILE_ATTRIBUTE_READONLY, "ReadOnly"},
	{FILE_ATTRIBUTE_HIDDEN, "Hidden"},
	{FILE_ATTRIBUTE_SYSTEM, "System"},
	{FILE_ATTRIBUTE_DIRECTORY, "Directory"},
	{FILE_ATTRIBUTE_ARCHIVE, "Archive"},
	{FILE_ATTRIBUTE_TEMPORARY, "Temporary"},
	{FILE_ATTRIBUTE_SPARSE_FILE, "Sparse"},
	{FILE_ATTRIBUTE_REPARSE_POINT, "ReparsePoint"},
	{FILE_ATTRIBUTE_COMPRESSED, "Compressed"},
	{FILE_ATTRIBUTE_OFFLINE, "Offline"},
	{FILE_ATTRIBUTE_ENCRYPTED, "Encrypted"},
}

// String lists the set bits, e.g. "ReadOnly, Hidden", or "Normal" when
// none of them is set.
func (a WindowsAttributes) String() string {
	var names []string
	for _, n := range attributeNames {
		if a.Has(n.bit) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "Normal"
	}
	return strings.Join(names, ", ")
}

// attributesToMode derives the permission bits a FileDescriptor reports.
// Shares expose no owner or group, so read-only clears write for everyone.
func attributesToMode(attrs uint32) fs.FileMode {
	a := WindowsAttributes(attrs)

	mode := fs.FileMode(0666)
	if a.IsDirectory() {
		mode = fs.ModeDir | 0777
	}
	if a.Has(FILE_ATTRIBUTE_READONLY) {
		mode &^= 0222
	}
	if a.Has(FILE_ATTRIBUTE_REPARSE_POINT) {
		mode |= fs.ModeSymlink
	}
	if a.Has(FILE_ATTRIBUTE_DEVICE) {
		mode |= fs.ModeDevice
	}
	return mode
}

// modeToAttributes is the reverse mapping, used for listings whose
// FileInfo carries no go-smb2 stat.
func modeToAttributes(mode fs.FileMode) uint32 {
	var attrs uint32
	switch {
	case mode.IsDir():
		attrs |= FILE_ATTRIBUTE_DIRECTORY
	case mode.IsRegular():
		attrs |= FILE_ATTRIBUTE_ARCHIVE
	}
	if mode&0222 == 0 {
		attrs |= FILE_ATTRIBUTE_READONLY
	}
	if mode&fs.ModeSymlink != 0 {
		attrs |= FILE_ATTRIBUTE_REPARSE_POINT
	}
	if mode&fs.ModeDevice != 0 {
		attrs |= FILE_ATTRIBUTE_DEVICE
	}
	if attrs == 0 {
		attrs = FILE_ATTRIBUTE_NORMAL
	}
	return attrs
}
