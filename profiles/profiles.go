// Package profiles provides named, predefined splice windows for the spliced
// backend.
package profiles

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dargueta/vblock/backends"
	"github.com/jszwec/csvutil"
)

// Profile is a named remap window.
type Profile struct {
	Slug string `csv:"slug"`
	Name string `csv:"name"`
	// Start and End give the inclusive window of LBAs whose reads are
	// redirected.
	Start uint64 `csv:"start"`
	End   uint64 `csv:"end"`
	// Target is the LBA in the secondary image that Start maps to.
	Target int64  `csv:"target"`
	Notes  string `csv:"notes"`
}

// Table returns a single-rule remap table for the profile.
func (p Profile) Table() backends.RemapTable {
	return backends.NewRemapTable(p.Start, p.End, p.Target)
}

////////////////////////////////////////////////////////////////////////////////

//go:embed remap-profiles.csv
var profilesRawCSV string
var profiles map[string]Profile

// Get returns the profile with the given slug.
func Get(slug string) (Profile, error) {
	profile, ok := profiles[slug]
	if ok {
		return profile, nil
	}

	err := fmt.Errorf("no predefined remap profile exists with slug %q", slug)
	return Profile{}, err
}

// List returns all predefined profiles sorted by slug.
func List() []Profile {
	result := make([]Profile, 0, len(profiles))
	for _, profile := range profiles {
		result = append(result, profile)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slug < result[j].Slug })
	return result
}

func init() {
	reader := strings.NewReader(profilesRawCSV)
	csvReader := csv.NewReader(reader)
	csvReader.Comma = '|'

	decoder, err := csvutil.NewDecoder(csvReader)
	if err != nil {
		panic(fmt.Errorf("failed to create CSV decoder: %w", err))
	}

	profiles = make(map[string]Profile)

	for {
		var row Profile
		if err = decoder.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			panic(
				fmt.Errorf("failed to decode row %d: %w", len(profiles)+1, err))
		}

		err = row.Table().Validate(0)
		if err != nil {
			panic(fmt.Errorf("profile %q is invalid: %w", row.Slug, err))
		}

		_, exists := profiles[row.Slug]
		if exists {
			message := fmt.Errorf(
				"duplicate definition for profile %q found on row %d",
				row.Slug,
				len(profiles)+1)
			panic(message)
		}
		profiles[row.Slug] = row
	}
}
