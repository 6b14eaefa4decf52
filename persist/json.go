package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/uplo-tech/errors"
)

// lockFile marks filename as in-use for the duration of fn, refusing
// concurrent save/load calls against the same path from this process.
func lockFile(filename string) (func(), error) {
	activeFilesMu.Lock()
	defer activeFilesMu.Unlock()
	if _, ok := activeFiles[filename]; ok {
		return nil, ErrFileInUse
	}
	activeFiles[filename] = struct{}{}
	return func() {
		activeFilesMu.Lock()
		delete(activeFiles, filename)
		activeFilesMu.Unlock()
	}, nil
}

// SaveJSON marshals data as JSON and atomically writes it to filename: the
// new contents land in a temp file first, which is then renamed over the
// destination, so a crash mid-write never corrupts the previous snapshot.
// filename must not already end in tempSuffix.
func SaveJSON(filename string, data interface{}) error {
	if strings.HasSuffix(filename, tempSuffix) {
		return ErrBadFilenameSuffix
	}
	unlock, err := lockFile(filename)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(filename), defaultDirPermissions); err != nil {
		return errors.AddContext(err, "could not create parent directory")
	}

	b, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return errors.AddContext(err, "could not marshal data")
	}

	tmp := filename + tempSuffix
	if err := os.WriteFile(tmp, b, defaultFilePermissions); err != nil {
		return errors.AddContext(err, "could not write temp file")
	}
	if err := os.Rename(tmp, filename); err != nil {
		return errors.AddContext(err, "could not rename temp file into place")
	}
	return nil
}

// LoadJSON reads filename and unmarshals it into data. If the primary file
// is missing or corrupt, it falls back to the temp file left by an
// interrupted SaveJSON.
func LoadJSON(filename string, data interface{}) error {
	unlock, err := lockFile(filename)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := os.ReadFile(filename)
	if err != nil {
		tmpB, tmpErr := os.ReadFile(filename + tempSuffix)
		if tmpErr != nil {
			return errors.AddContext(err, "could not read file or its backup")
		}
		b = tmpB
	}
	if err := json.Unmarshal(b, data); err != nil {
		return errors.AddContext(err, "could not unmarshal data")
	}
	return nil
}
