package tlockage

import (
	"io"

	"filippo.io/age/armor"
)

// NewArmorWriter wraps dst in the age ASCII armor format. Close must be
// called to write the end marker; an unclosed writer produces a truncated
// file that will not decrypt.
func NewArmorWriter(dst io.Writer) io.WriteCloser {
	return armor.NewWriter(dst)
}

// NewArmorReader strips the age ASCII armor from src.
func NewArmorReader(src io.Reader) io.Reader {
	return armor.NewReader(src)
}
