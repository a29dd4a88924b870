package projectconfig

import (
	"sort"
	"strings"
)

const (
	environmentReferenceSigilConstant      = '$'
	environmentReferenceOpenBraceConstant  = '{'
	environmentReferenceCloseBraceConstant = '}'
	environmentReferenceUnderscoreConstant = '_'
)

// EnvironmentLookup resolves environment variables. os.LookupEnv satisfies it.
type EnvironmentLookup func(name string) (string, bool)

type environmentReference struct {
	name  string
	start int
	end   int
}

// CollectEnvironmentReferences returns the sorted, deduplicated variable names
// referenced in value through $NAME or ${NAME}.
func CollectEnvironmentReferences(value string) []string {
	references := scanEnvironmentReferences(value)
	if len(references) == 0 {
		return nil
	}
	names := make([]string, 0, len(references))
	for _, reference := range references {
		names = append(names, reference.name)
	}
	return sortedUnique(names)
}

// ExpandEnvironmentReferences substitutes $NAME and ${NAME} with values from lookup.
// Unset variables expand to the empty string.
func ExpandEnvironmentReferences(value string, lookup EnvironmentLookup) string {
	references := scanEnvironmentReferences(value)
	if len(references) == 0 {
		return value
	}

	var builder strings.Builder
	cursor := 0
	for _, reference := range references {
		builder.WriteString(value[cursor:reference.start])
		if lookup != nil {
			if resolved, found := lookup(reference.name); found {
				builder.WriteString(resolved)
			}
		}
		cursor = reference.end
	}
	builder.WriteString(value[cursor:])
	return builder.String()
}

func scanEnvironmentReferences(value string) []environmentReference {
	var references []environmentReference
	for index := 0; index < len(value); index++ {
		if value[index] != environmentReferenceSigilConstant || index+1 >= len(value) {
			continue
		}

		if value[index+1] == environmentReferenceOpenBraceConstant {
			closing := strings.IndexByte(value[index+2:], environmentReferenceCloseBraceConstant)
			if closing < 0 {
				continue
			}
			name := value[index+2 : index+2+closing]
			if !isEnvironmentName(name) {
				continue
			}
			end := index + 2 + closing + 1
			references = append(references, environmentReference{name: name, start: index, end: end})
			index = end - 1
			continue
		}

		nameEnd := index + 1
		for nameEnd < len(value) && isEnvironmentNameByte(value[nameEnd], nameEnd == index+1) {
			nameEnd++
		}
		if nameEnd == index+1 {
			continue
		}
		references = append(references, environmentReference{name: value[index+1 : nameEnd], start: index, end: nameEnd})
		index = nameEnd - 1
	}
	return references
}

func isEnvironmentName(name string) bool {
	if len(name) == 0 {
		return false
	}
	for index := 0; index < len(name); index++ {
		if !isEnvironmentNameByte(name[index], index == 0) {
			return false
		}
	}
	return true
}

func isEnvironmentNameByte(character byte, leading bool) bool {
	switch {
	case character == environmentReferenceUnderscoreConstant:
		return true
	case character >= 'A' && character <= 'Z', character >= 'a' && character <= 'z':
		return true
	case character >= '0' && character <= '9':
		return !leading
	default:
		return false
	}
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if _, duplicate := seen[value]; duplicate {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	sort.Strings(unique)
	return unique
}
