package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/chunkstore/internal/server/models"
	"github.com/dustin/go-humanize"
	"github.com/google/renameio"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the metadata record, equivalent to
//
//	message FileMetadata {
//	  string name = 1;
//	  string path = 2;
//	  int64  size = 3;
//	}
const (
	metadataNameField protowire.Number = 1
	metadataPathField protowire.Number = 2
	metadataSizeField protowire.Number = 3
)

var ErrMalformedMetadata = errors.New("malformed metadata record")

// EncodeMetadata serialises md in protobuf wire format.
func EncodeMetadata(md models.FileMetadata) []byte {
	var b []byte
	b = protowire.AppendTag(b, metadataNameField, protowire.BytesType)
	b = protowire.AppendString(b, md.Name)
	b = protowire.AppendTag(b, metadataPathField, protowire.BytesType)
	b = protowire.AppendString(b, md.Path)
	b = protowire.AppendTag(b, metadataSizeField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(md.Size))
	return b
}

// DecodeMetadata parses a record written by EncodeMetadata. Unknown fields
// are skipped.
func DecodeMetadata(b []byte) (models.FileMetadata, error) {
	var md models.FileMetadata
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return md, fmt.Errorf("%w: %v", ErrMalformedMetadata, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == metadataNameField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return md, fmt.Errorf("%w: name: %v", ErrMalformedMetadata, protowire.ParseError(n))
			}
			md.Name = v
			b = b[n:]
		case num == metadataPathField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return md, fmt.Errorf("%w: path: %v", ErrMalformedMetadata, protowire.ParseError(n))
			}
			md.Path = v
			b = b[n:]
		case num == metadataSizeField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return md, fmt.Errorf("%w: size: %v", ErrMalformedMetadata, protowire.ParseError(n))
			}
			md.Size = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return md, fmt.Errorf("%w: field %d: %v", ErrMalformedMetadata, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return md, nil
}

// ReadMetadata loads and decodes the record at path.
func ReadMetadata(path string) (models.FileMetadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.FileMetadata{}, fmt.Errorf("read metadata: %w", err)
	}
	return DecodeMetadata(b)
}

// record writes the metadata record next to the assembled file. A record
// from an earlier cycle is replaced.
func (s *Service) record(ctx context.Context, submissionID, dir, original, final string) (models.FileMetadata, error) {
	path := filepath.Join(dir, final)
	fi, err := os.Stat(path)
	if err != nil {
		return models.FileMetadata{}, fmt.Errorf("stat assembled file: %w", err)
	}

	md := models.FileMetadata{Name: original, Path: path, Size: fi.Size()}
	if err := renameio.WriteFile(filepath.Join(dir, MetadataName(final)), EncodeMetadata(md), 0o640); err != nil {
		return models.FileMetadata{}, fmt.Errorf("write metadata: %w", err)
	}

	s.logger.Info(ctx, "finished uploading",
		"submission", submissionID, "name", original, "file", final, "size", humanize.Bytes(uint64(md.Size)))
	return md, nil
}
