package projectconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// TimezoneVariableName is the dotenv key overriding the project timezone.
	TimezoneVariableName = "TZ"
	// DNSTimeToLiveVariableName is the dotenv key overriding the bun DNS cache lifetime.
	DNSTimeToLiveVariableName = "BUN_CONFIG_DNS_TIME_TO_LIVE_SECONDS"

	dotenvParseErrorTemplateConstant = "failed to parse %s: %w"
)

// DotenvCandidates lists dotenv files in increasing precedence order.
var DotenvCandidates = []string{".env", ".env.development", ".env.production", ".env.local"}

// DotenvOverrides holds the values contributed by dotenv files. Empty or zero means not set.
type DotenvOverrides struct {
	Files         []string
	Timezone      string
	DNSTimeToLive int
}

// ReadDotenv merges the dotenv candidates in directory with later files
// overriding earlier ones. Malformed files are skipped and reported through the
// joined error while the remaining files still apply.
func ReadDotenv(directory string) (DotenvOverrides, error) {
	merged := make(map[string]string)
	overrides := DotenvOverrides{}
	var parseErrors []error

	for _, candidate := range DotenvCandidates {
		candidatePath := filepath.Join(directory, candidate)
		values, readError := godotenv.Read(candidatePath)
		if readError != nil {
			if errors.Is(readError, fs.ErrNotExist) {
				continue
			}
			parseErrors = append(parseErrors, fmt.Errorf(dotenvParseErrorTemplateConstant, candidatePath, readError))
			continue
		}
		overrides.Files = append(overrides.Files, candidate)
		for key, value := range values {
			merged[key] = value
		}
	}

	overrides.Timezone = strings.TrimSpace(merged[TimezoneVariableName])
	overrides.DNSTimeToLive = ParseSeconds(merged[DNSTimeToLiveVariableName])
	return overrides, errors.Join(parseErrors...)
}

// ParseSeconds converts a non-negative integer string, returning zero for anything else.
func ParseSeconds(value string) int {
	parsed, parseError := strconv.Atoi(strings.TrimSpace(value))
	if parseError != nil || parsed < 0 {
		return 0
	}
	return parsed
}
