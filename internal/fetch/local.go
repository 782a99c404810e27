package fetch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/docmeta/internal/types"
)

// listLocal returns p itself when it is a file, or every PDF beneath it when
// it is a directory. Hidden files and directories are skipped.
func listLocal(p string) ([]types.DocumentDescriptor, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, &Error{URL: p, Message: "cannot access path", Cause: err}
	}
	if !info.IsDir() {
		return []types.DocumentDescriptor{{Name: info.Name(), Location: p, Kind: types.SourceLocal, Size: info.Size()}}, nil
	}

	var docs []types.DocumentDescriptor
	err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != p && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isPDF(d.Name()) {
			return nil
		}
		var size int64
		if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		docs = append(docs, types.DocumentDescriptor{Name: d.Name(), Location: path, Kind: types.SourceLocal, Size: size})
		return nil
	})
	if err != nil {
		return nil, &Error{URL: p, Message: "failed to walk directory", Cause: err}
	}
	return docs, nil
}
