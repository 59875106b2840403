package smbpoll

import (
	"io/fs"
	"testing"
)

func TestWindowsAttributes_Has(t *testing.T) {
	tests := []struct {
		name  string
		attrs WindowsAttributes
		mask  WindowsAttributes
		want  bool
	}{
		{"single bit set", FILE_ATTRIBUTE_HIDDEN, FILE_ATTRIBUTE_HIDDEN, true},
		{"single bit not set", FILE_ATTRIBUTE_ARCHIVE, FILE_ATTRIBUTE_HIDDEN, false},
		{"all of mask set", FILE_ATTRIBUTE_HIDDEN | FILE_ATTRIBUTE_SYSTEM | FILE_ATTRIBUTE_ARCHIVE, FILE_ATTRIBUTE_HIDDEN | FILE_ATTRIBUTE_SYSTEM, true},
		{"part of mask set", FILE_ATTRIBUTE_HIDDEN, FILE_ATTRIBUTE_HIDDEN | FILE_ATTRIBUTE_SYSTEM, false},
		{"empty mask", FILE_ATTRIBUTE_HIDDEN, 0, false},
		{"offline", FILE_ATTRIBUTE_OFFLINE | FILE_ATTRIBUTE_ARCHIVE, FILE_ATTRIBUTE_OFFLINE, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.attrs.Has(tt.mask); got != tt.want {
				t.Errorf("%#x.Has(%#x) = %v, want %v", uint32(tt.attrs), uint32(tt.mask), got, tt.want)
			}
		})
	}

	if !WindowsAttributes(FILE_ATTRIBUTE_DIRECTORY | FILE_ATTRIBUTE_HIDDEN).IsDirectory() {
		t.Error("IsDirectory() = false for a hidden directory")
	}
	if WindowsAttributes(FILE_ATTRIBUTE_ARCHIVE).IsDirectory() {
		t.Error("IsDirectory() = true for a file")
	}
}

func TestWindowsAttributes_String(t *testing.T) {
	tests := []struct {
		name  string
		attrs WindowsAttributes
		want  string
	}{
		{"normal", FILE_ATTRIBUTE_NORMAL, "Normal"},
		{"none", 0, "Normal"},
		{"hidden", FILE_ATTRIBUTE_HIDDEN, "Hidden"},
		{"multiple in display order", FILE_ATTRIBUTE_HIDDEN | FILE_ATTRIBUTE_READONLY, "ReadOnly, Hidden"},
		{"directory", FILE_ATTRIBUTE_DIRECTORY | FILE_ATTRIBUTE_SYSTEM, "System, Directory"},
		{"unnamed bits ignored", FILE_ATTRIBUTE_NOT_CONTENT_INDEXED | FILE_ATTRIBUTE_TEMPORARY, "Temporary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.attrs.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttributesToMode(t *testing.T) {
	tests := []struct {
		name  string
		attrs uint32
		check func(fs.FileMode) bool
	}{
		{"readonly file", FILE_ATTRIBUTE_READONLY, func(m fs.FileMode) bool { return m&0222 == 0 && !m.IsDir() }},
		{"writable file", FILE_ATTRIBUTE_ARCHIVE, func(m fs.FileMode) bool { return m == 0666 }},
		{"directory", FILE_ATTRIBUTE_DIRECTORY, func(m fs.FileMode) bool { return m.IsDir() }},
		{"readonly directory", FILE_ATTRIBUTE_DIRECTORY | FILE_ATTRIBUTE_READONLY, func(m fs.FileMode) bool { return m == fs.ModeDir|0555 }},
		{"symlink", FILE_ATTRIBUTE_REPARSE_POINT, func(m fs.FileMode) bool { return m&fs.ModeSymlink != 0 }},
		{"device", FILE_ATTRIBUTE_DEVICE, func(m fs.FileMode) bool { return m&fs.ModeDevice != 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if mode := attributesToMode(tt.attrs); !tt.check(mode) {
				t.Errorf("attributesToMode(%#x) = %v", tt.attrs, mode)
			}
		})
	}
}

func TestModeToAttributes(t *testing.T) {
	tests := []struct {
		name  string
		mode  fs.FileMode
		check func(uint32) bool
	}{
		{"readonly", 0444, func(a uint32) bool { return a&FILE_ATTRIBUTE_READONLY != 0 }},
		{"writable", 0666, func(a uint32) bool { return a&FILE_ATTRIBUTE_READONLY == 0 }},
		{"regular file is archive only", 0644, func(a uint32) bool { return a == FILE_ATTRIBUTE_ARCHIVE }},
		{"read-only regular file", 0444, func(a uint32) bool { return a == FILE_ATTRIBUTE_ARCHIVE|FILE_ATTRIBUTE_READONLY }},
		{"named pipe is normal", fs.ModeNamedPipe | 0666, func(a uint32) bool { return a == FILE_ATTRIBUTE_NORMAL }},
		{"directory", fs.ModeDir | 0755, func(a uint32) bool { return a&FILE_ATTRIBUTE_DIRECTORY != 0 }},
		{"symlink", fs.ModeSymlink | 0777, func(a uint32) bool { return a&FILE_ATTRIBUTE_REPARSE_POINT != 0 }},
		{"device", fs.ModeDevice | 0666, func(a uint32) bool { return a&FILE_ATTRIBUTE_DEVICE != 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if attrs := modeToAttributes(tt.mode); !tt.check(attrs) {
				t.Errorf("modeToAttributes(%v) = %#x", tt.mode, attrs)
			}
		})
	}
}
