package smbpoll

import (
	"io/fs"
	"time"

	"github.com/hirochachacha/go-smb2"
)

// RawEntry is one record of a directory listing as reported by the share.
type RawEntry struct {
	Name          string
	Size          int64
	LastWriteTime time.Time
	Attributes    uint32 // MS-FSCC FILE_ATTRIBUTE_* bitmask
}

// rawEntryFromInfo converts a listing record into a RawEntry. Sessions
// backed by go-smb2 expose the attribute bitmask directly; anything else has
// it reconstructed from the file mode.
func rawEntryFromInfo(info fs.FileInfo) RawEntry {
	if st, ok := info.Sys().(*smb2.FileStat); ok {
		return RawEntry{
			Name:          info.Name(),
			Size:          st.EndOfFile,
			LastWriteTime: st.LastWriteTime,
			Attributes:    st.FileAttributes,
		}
	}
	return RawEntry{
		Name:          info.Name(),
		Size:          info.Size(),
		LastWriteTime: info.ModTime(),
		Attributes:    modeToAttributes(info.Mode()),
	}
}

// FileDescriptor is the protocol-agnostic description of one remote file
// or directory discovered by a poll. It is not mutated once emitted.
//
// FileDescriptor implements fs.FileInfo.
type FileDescriptor struct {
	AbsolutePath string    // parent path + "/" + FileNameOnly
	RelativePath string    // the entry's own name
	FileNameOnly string    // the entry's own name
	FileName     string    // the entry's own name
	Length       int64     // size in bytes
	LastModified time.Time // last write time
	Directory    bool      // taken from the directory attribute bit
	EndpointPath string    // share-qualified endpoint root
	Attributes   uint32
}

// Normalize builds the descriptor for entry listed under parent.
func Normalize(parent string, entry RawEntry, endpointRoot string) *FileDescriptor {
	return &FileDescriptor{
		AbsolutePath: joinPath(parent, entry.Name),
		RelativePath: entry.Name,
		FileNameOnly: entry.Name,
		FileName:     entry.Name,
		Length:       entry.Size,
		LastModified: entry.LastWriteTime,
		Directory:    entry.Attributes&FILE_ATTRIBUTE_DIRECTORY == FILE_ATTRIBUTE_DIRECTORY,
		EndpointPath: endpointRoot,
		Attributes:   entry.Attributes,
	}
}

// WindowsAttributes returns the full attribute set of the entry.
func (d *FileDescriptor) WindowsAttributes() WindowsAttributes {
	return WindowsAttributes(d.Attributes)
}

func (d *FileDescriptor) Name() string       { return d.FileNameOnly }
func (d *FileDescriptor) Size() int64        { return d.Length }
func (d *FileDescriptor) Mode() fs.FileMode  { return attributesToMode(d.Attributes) }
func (d *FileDescriptor) ModTime() time.Time { return d.LastModified }
func (d *FileDescriptor) IsDir() bool        { return d.Directory }
func (d *FileDescriptor) Sys() any           { return d.WindowsAttributes() }
