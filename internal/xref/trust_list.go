package xref

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const trustListParseErrorTemplateConstant = "failed to parse trust list: %w"

//go:embed default_trusted.yaml
var defaultTrustListContent []byte

type trustListDocument struct {
	Packages []string `yaml:"packages"`
}

// TrustList is an immutable set of package names.
type TrustList struct {
	names map[string]struct{}
}

// NewTrustList builds a TrustList from names, ignoring blanks.
func NewTrustList(names []string) TrustList {
	list := TrustList{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if len(trimmed) == 0 {
			continue
		}
		list.names[trimmed] = struct{}{}
	}
	return list
}

// ParseTrustList decodes a YAML document with a top-level packages list.
func ParseTrustList(contents []byte) (TrustList, error) {
	var document trustListDocument
	if decodeError := yaml.Unmarshal(contents, &document); decodeError != nil {
		return TrustList{}, fmt.Errorf(trustListParseErrorTemplateConstant, decodeError)
	}
	return NewTrustList(document.Packages), nil
}

// DefaultTrustList returns the built-in trust list.
func DefaultTrustList() (TrustList, error) {
	return ParseTrustList(defaultTrustListContent)
}

// Contains reports membership.
func (list TrustList) Contains(name string) bool {
	_, found := list.names[name]
	return found
}

// Len returns the number of names.
func (list TrustList) Len() int {
	return len(list.names)
}

// Names returns the sorted names.
func (list TrustList) Names() []string {
	names := make([]string, 0, len(list.names))
	for name := range list.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
