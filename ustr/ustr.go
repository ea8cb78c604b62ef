// Package ustr implements the immutable byte-string type used for the
// variable-length path payloads the process-manager message format
// carries (NameAttach, NameOpen, Spawn). There is no file-system path
// resolution in this kernel; name-registry paths are opaque,
// fully-qualified strings compared only for equality.
package ustr

/// Ustr is an immutable path string used by the name registry and by
/// process-manager message payloads.
type Ustr []uint8

/// Eq compares two Ustr values for equality.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

/// MkUstr creates an empty Ustr value.
func MkUstr() Ustr {
	return Ustr{}
}

/// MkUstrSlice converts a NUL-terminated byte slice to a Ustr, truncating
/// at the first NUL byte. Used to decode the path bytes that follow a
/// message's path_len field.
func MkUstrSlice(buf []uint8) Ustr {
	for i := 0; i < len(buf); i++ {
		if buf[i] == 0 {
			return append(Ustr{}, buf[:i]...)
		}
	}
	return append(Ustr{}, buf...)
}

/// IsAbsolute reports whether the path begins with '/'.
func (us Ustr) IsAbsolute() bool {
	return len(us) > 0 && us[0] == '/'
}

/// String converts the Ustr to a Go string.
func (us Ustr) String() string {
	return string(us)
}
