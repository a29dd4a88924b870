package projectconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// LockfileKind describes which lockfile form a project carries.
type LockfileKind string

// Lockfile kinds.
const (
	LockfileKindNone   LockfileKind = "none"
	LockfileKindText   LockfileKind = "text"
	LockfileKindBinary LockfileKind = "binary"
)

const (
	// TextLockfileName is the text lockfile file name.
	TextLockfileName = "bun.lock"
	// BinaryLockfileName is the binary lockfile file name.
	BinaryLockfileName = "bun.lockb"
	// MissingValueSentinel marks string fields whose source was absent.
	MissingValueSentinel = "-"

	lockfileHashFormatConstant          = "%016x"
	lockfileReadErrorTemplateConstant   = "failed to read %s: %w"
	lockfileHeaderErrorTemplateConstant = "failed to parse %s header: %w"
	lockfileVersionKeyConstant          = "lockfileVersion"
	lockfileConfigVersionKeyConstant    = "configVersion"
)

var errLockfileHeaderNotObject = errors.New("lockfile does not start with an object")

// Lockfile summarizes a project lockfile.
type Lockfile struct {
	Kind            LockfileKind
	Hash            string
	LockfileVersion int
	ConfigVersion   int
	HeaderParsed    bool
}

// ReadLockfile prefers the text lockfile over the binary one. Only the scalar
// header of the text form is decoded; the whole file contributes to the hash.
func ReadLockfile(directory string) (Lockfile, error) {
	textPath := filepath.Join(directory, TextLockfileName)
	textContents, textReadError := os.ReadFile(textPath)
	if textReadError == nil {
		lockfile := Lockfile{Kind: LockfileKindText, Hash: HashContents(textContents)}
		header, headerError := parseLockfileHeader(textContents)
		if headerError != nil {
			return lockfile, fmt.Errorf(lockfileHeaderErrorTemplateConstant, textPath, headerError)
		}
		lockfile.LockfileVersion = header.lockfileVersion
		lockfile.ConfigVersion = header.configVersion
		lockfile.HeaderParsed = true
		return lockfile, nil
	}
	if !errors.Is(textReadError, fs.ErrNotExist) {
		return missingLockfile(), fmt.Errorf(lockfileReadErrorTemplateConstant, textPath, textReadError)
	}

	binaryPath := filepath.Join(directory, BinaryLockfileName)
	binaryContents, binaryReadError := os.ReadFile(binaryPath)
	if binaryReadError != nil {
		if errors.Is(binaryReadError, fs.ErrNotExist) {
			return missingLockfile(), nil
		}
		return missingLockfile(), fmt.Errorf(lockfileReadErrorTemplateConstant, binaryPath, binaryReadError)
	}
	return Lockfile{Kind: LockfileKindBinary, Hash: HashContents(binaryContents)}, nil
}

// HashContents renders the xxhash64 digest of contents as sixteen lowercase hex digits.
func HashContents(contents []byte) string {
	return fmt.Sprintf(lockfileHashFormatConstant, xxhash.Sum64(contents))
}

func missingLockfile() Lockfile {
	return Lockfile{Kind: LockfileKindNone, Hash: MissingValueSentinel}
}

type lockfileHeader struct {
	lockfileVersion int
	configVersion   int
}

// parseLockfileHeader walks leading key/scalar pairs of the top-level object and
// stops at the first nested value or at the first token strict JSON rejects,
// since the body of a text lockfile allows trailing commas.
func parseLockfileHeader(contents []byte) (lockfileHeader, error) {
	decoder := json.NewDecoder(bytes.NewReader(contents))
	decoder.UseNumber()

	openingToken, tokenError := decoder.Token()
	if tokenError != nil {
		return lockfileHeader{}, tokenError
	}
	if delimiter, isDelimiter := openingToken.(json.Delim); !isDelimiter || delimiter != '{' {
		return lockfileHeader{}, errLockfileHeaderNotObject
	}

	header := lockfileHeader{}
	for {
		keyToken, keyError := decoder.Token()
		if keyError != nil {
			if errors.Is(keyError, io.EOF) {
				return header, keyError
			}
			return header, nil
		}
		key, isKey := keyToken.(string)
		if !isKey {
			return header, nil
		}

		valueToken, valueError := decoder.Token()
		if valueError != nil {
			return header, nil
		}
		if _, isDelimiter := valueToken.(json.Delim); isDelimiter {
			return header, nil
		}

		number, isNumber := valueToken.(json.Number)
		if !isNumber {
			continue
		}
		parsed, parseError := strconv.Atoi(number.String())
		if parseError != nil {
			continue
		}
		switch key {
		case lockfileVersionKeyConstant:
			header.lockfileVersion = parsed
		case lockfileConfigVersionKeyConstant:
			header.configVersion = parsed
		}
	}
}
