// Package listing produces the file views the shell renders: remote objects
// and virtual folders under a prefix, with encrypted objects shown under
// their original filenames.
package listing

import (
	"context"
	"sort"
	"strings"

	"github.com/alsofelix/crabdrop/internal/metadata"
	"github.com/alsofelix/crabdrop/internal/s3"
)

// File is one listing entry.
type File struct {
	Name         string `json:"name"`
	Key          string `json:"key"`
	Size         *int64 `json:"size"`
	IsFolder     bool   `json:"isFolder"`
	LastModified *int64 `json:"lastModified"`
	Encrypted    bool   `json:"encrypted"`
}

// Service lists a bucket through the adapter, rewriting names through the
// metadata index.
type Service struct {
	store      s3.ObjectStore
	passphrase []byte
}

// NewService creates a listing service. With an empty passphrase the
// metadata index is not consulted and every entry keeps its raw name.
func NewService(store s3.ObjectStore, passphrase []byte) *Service {
	return &Service{store: store, passphrase: passphrase}
}

// List returns all entries under prefix, merged across listing pages and
// sorted case-insensitively by displayed name.
func (s *Service) List(ctx context.Context, prefix string) ([]File, error) {
	var idx *metadata.Index
	if len(s.passphrase) > 0 {
		var err error
		idx, err = metadata.Load(ctx, s.store, s.passphrase)
		if err != nil {
			return nil, err
		}
	}

	files := make([]File, 0)
	opts := s3.ListOptions{Delimiter: "/"}
	for {
		page, err := s.store.List(ctx, prefix, opts)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Objects {
			raw := lastSegment(obj.Key)
			name := raw
			encrypted := false
			if idx != nil && idx.IsInMeta(raw) {
				encrypted = true
				if original, err := idx.Filename(raw); err == nil {
					name = original
				}
			}

			size := obj.Size
			entry := File{
				Name:      name,
				Key:       obj.Key,
				Size:      &size,
				Encrypted: encrypted,
			}
			if obj.LastModified != 0 {
				lm := obj.LastModified
				entry.LastModified = &lm
			}
			files = append(files, entry)
		}

		for _, cp := range page.CommonPrefixes {
			raw := lastSegment(cp)
			name := raw
			encrypted := false
			if idx != nil && idx.IsInMeta(raw) {
				encrypted = true
				if original, err := idx.Filename(raw); err == nil {
					name = original
				}
			}
			files = append(files, File{
				Name:      name,
				Key:       cp,
				IsFolder:  true,
				Encrypted: encrypted,
			})
		}

		if !page.IsTruncated {
			break
		}
		opts.ContinuationToken = page.NextContinuationToken
	}

	sort.SliceStable(files, func(i, j int) bool {
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})

	return files, nil
}

func lastSegment(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
