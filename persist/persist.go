package persist

import (
	"bytes"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/fastrand"
)

const (
	// DefaultDiskPermissionsTest when creating files or directories in tests.
	DefaultDiskPermissionsTest = 0750

	// FixedMetadataSize is the size of the FixedMetadata header in bytes.
	FixedMetadataSize = 32

	// defaultDirPermissions is the default permissions when creating dirs.
	defaultDirPermissions = 0700

	// defaultFilePermissions is the default permissions when creating files.
	defaultFilePermissions = 0600

	// persistDir defines the folder that is used for testing the persist
	// package.
	persistDir = "persist"

	// randomBytes is the number of bytes to use to ensure sufficient randomness
	randomBytes = 20

	// tempSuffix is the suffix that is applied to the temporary/backup versions
	// of the files being persisted.
	tempSuffix = "_temp"

	// specifierSize is the length in bytes of a Specifier.
	specifierSize = 16
)

var (
	// ErrBadFilenameSuffix indicates that SaveJSON or LoadJSON was called using
	// a filename that has a bad suffix. This prevents users from trying to use
	// this package to manage the temp files - this package will manage them
	// automatically.
	ErrBadFilenameSuffix = errors.New("filename suffix not allowed")

	// ErrBadHeader indicates that the file opened is not the file that was
	// expected.
	ErrBadHeader = errors.New("wrong header")

	// ErrBadVersion indicates that the version number of the file is not
	// compatible with the current codebase.
	ErrBadVersion = errors.New("incompatible version")

	// ErrFileInUse is returned if SaveJSON or LoadJSON is called on a file
	// that's already being manipulated in another thread by the persist
	// package.
	ErrFileInUse = errors.New("another thread is saving or loading this file")
)

var (
	// activeFiles is a map tracking which filenames are currently being used
	// for saving and loading. There should never be a situation where the same
	// file is being called twice from different threads, as the persist package
	// has no way to tell what order they were intended to be called.
	activeFiles   = make(map[string]struct{})
	activeFilesMu sync.Mutex
)

// Specifier is a fixed-length, null-padded identifier used as a metadata
// header and version tag, avoiding ambiguity between files of differing
// record layouts.
type Specifier [specifierSize]byte

// NewSpecifier takes a string and returns a specifier, truncating or
// null-padding the string as necessary.
func NewSpecifier(name string) Specifier {
	var s Specifier
	copy(s[:], name)
	return s
}

var (
	// MetadataVersionMapV1 is the metadata version for the proxy's block-map
	// (container id + corruption flag arrays) persist file, version 1.
	MetadataVersionMapV1 = NewSpecifier("map-v1\n")
)

// Metadata contains the header and version of the data being stored.
type Metadata struct {
	Header  string
	Version string
}

// FixedMetadata contains the header and version of the data being stored as a
// fixed-length byte-array.
type FixedMetadata struct {
	Header  Specifier
	Version Specifier
}

// RandomSuffix returns a 20 character base32 suffix for a filename. There are
// 100 bits of entropy, and a very low probability of colliding with existing
// files unintentionally.
func RandomSuffix() string {
	str := base32.StdEncoding.EncodeToString(fastrand.Bytes(randomBytes))
	return str[:20]
}

// UID returns a hexadecimal encoded string that can be used as an unique ID.
func UID() string {
	return hex.EncodeToString(fastrand.Bytes(randomBytes))
}

// RemoveFile removes an atomic file from disk, along with any uncommitted
// or temporary files.
func RemoveFile(filename string) error {
	err := os.RemoveAll(filename)
	if err != nil {
		return err
	}
	return os.RemoveAll(filename + tempSuffix)
}

// SaveJSON marshals data as JSON, writes it to a temp file suffixed with
// tempSuffix, then renames it over filename so a reader never observes a
// partially-written file. Guarded by activeFiles so the same filename is
// never saved from two goroutines at once.
func SaveJSON(meta Metadata, data interface{}, filename string) error {
	activeFilesMu.Lock()
	if _, busy := activeFiles[filename]; busy {
		activeFilesMu.Unlock()
		return ErrFileInUse
	}
	activeFiles[filename] = struct{}{}
	activeFilesMu.Unlock()
	defer func() {
		activeFilesMu.Lock()
		delete(activeFiles, filename)
		activeFilesMu.Unlock()
	}()

	payload := struct {
		Metadata
		Data interface{}
	}{meta, data}
	b, err := json.MarshalIndent(payload, "", "\t")
	if err != nil {
		return errors.AddContext(err, "could not marshal JSON")
	}

	tmp := filename + tempSuffix
	if err := os.WriteFile(tmp, b, defaultFilePermissions); err != nil {
		return errors.AddContext(err, "could not write temp file")
	}
	return os.Rename(tmp, filename)
}

// LoadJSON reads filename and unmarshals its JSON payload into data,
// verifying the embedded Metadata header and version match meta.
func LoadJSON(meta Metadata, data interface{}, filename string) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var payload struct {
		Metadata
		Data json.RawMessage
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return errors.AddContext(err, "could not unmarshal JSON")
	}
	if payload.Header != meta.Header || payload.Version != meta.Version {
		return ErrBadHeader
	}
	return json.Unmarshal(payload.Data, data)
}

// VerifyMetadataHeader will take in a reader and an expected metadata header,
// if the file's header has a different header or version it will return the
// corresponding error and the actual metadata header
func VerifyMetadataHeader(r io.Reader, expected FixedMetadata) (FixedMetadata, error) {
	b := make([]byte, FixedMetadataSize)

	// Read metadata from file
	_, err := r.Read(b)
	if err != nil {
		return FixedMetadata{}, errors.AddContext(err, "could not read metadata header")
	}
	actual := FixedMetadata{}
	err = encoding.Unmarshal(b[:], &actual)
	if err != nil {
		return actual, errors.AddContext(err, "could not decode metadata header")
	}

	// Verify metadata header and version
	if !bytes.Equal(actual.Header[:], expected.Header[:]) {
		return actual, ErrBadHeader
	}
	if !bytes.Equal(actual.Version[:], expected.Version[:]) {
		return actual, ErrBadVersion
	}

	return actual, nil
}
