package upload

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename returns a filesystem-safe version of name: ASCII only,
// whitespace and path separators folded into underscores, nothing outside
// [A-Za-z0-9_.-], no leading or trailing dots and underscores. The result
// may be empty.
//
//	SecureFilename("My cool movie.mov")   // "My_cool_movie.mov"
//	SecureFilename("../../../etc/passwd") // "etc_passwd"
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	name = b.String()

	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")

	return strings.Trim(name, "._")
}

// EncodeFilename returns the safe form of name and the hex MD5 of the
// original name. The hash tells apart names that sanitize identically.
func EncodeFilename(name string) (safe, hash string) {
	sum := md5.Sum([]byte(name))
	return SecureFilename(name), hex.EncodeToString(sum[:])
}

// GetExtension returns the extension of filename including the dot.
// Compressed tarballs keep both parts: "a.tar.gz" → ".tar.gz".
// A name made only of leading dots plus a suffix (".bashrc") has none.
func GetExtension(filename string) string {
	root, ext := splitExt(filename)
	if (ext == ".gz" || ext == ".bz2") && strings.HasSuffix(root, ".tar") {
		return ".tar" + ext
	}
	return ext
}

func splitExt(name string) (root, ext string) {
	base := name[strings.LastIndexAny(name, `/\`)+1:]
	dot := strings.LastIndex(base, ".")
	if dot <= 0 || strings.Trim(base[:dot], ".") == "" {
		return name, ""
	}
	cut := len(name) - len(base) + dot
	return name[:cut], name[cut:]
}

// Names derives every on-disk name for one original filename. It is pure:
// the same original name always yields the same names, so no lookup table
// is needed to find a file's chunks, payload or metadata.
type Names struct {
	Safe string
	Hash string
}

func NewNames(original string) Names {
	safe, hash := EncodeFilename(original)
	return Names{Safe: safe, Hash: hash}
}

// FileKey is "<safe>_<hash>", shared by every chunk of the file.
func (n Names) FileKey() string {
	return n.Safe + "_" + n.Hash
}

// Chunk is the name of the chunk with the given index.
func (n Names) Chunk(index int) string {
	return n.chunkPrefix() + strconv.Itoa(index)
}

func (n Names) chunkPrefix() string {
	return n.FileKey() + "_"
}

// Final is the name of the assembled file.
func (n Names) Final() string {
	return n.FileKey() + GetExtension(n.Safe)
}

// Metadata is the name of the metadata record of the assembled file.
func (n Names) Metadata() string {
	return MetadataName(n.Final())
}

// MetadataName is the metadata record name for an assembled filename.
func MetadataName(final string) string {
	return common.MetadataFilePrefix + final
}

// chunkIndex parses the index from a directory entry name, reporting false
// when the entry is not a chunk of this file.
func (n Names) chunkIndex(entry string) (int, bool) {
	suffix, ok := strings.CutPrefix(entry, n.chunkPrefix())
	if !ok || suffix == "" {
		return 0, false
	}
	for i := 0; i < len(suffix); i++ {
		if suffix[i] < '0' || suffix[i] > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return idx, true
}
