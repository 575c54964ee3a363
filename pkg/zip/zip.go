// Package zip builds the in-memory archives served by the track bundle
// endpoint.
package zip

import (
	"archive/zip"
	"bytes"
)

type Asset struct {
	Filename string
	Data     []byte
}

// ArchiveAssets packs the assets into one zip archive. Entries without data
// are skipped; a write failure aborts and returns nil.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range assets {
		if len(asset.Data) == 0 {
			continue
		}
		w, err := zw.Create(asset.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
