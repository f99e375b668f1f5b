// Package summaries imports structured career summaries files into master records.
package summaries

import (
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

//nolint:gochecknoglobals // Compiled once
var yearPattern = regexp.MustCompile(`\b(19|20)[0-9]{2}\b`)

// Load reads the summaries data from a JSON file.
func Load(path string) (data Data, err error) {
	// Read file
	var fileData []byte
	fileData, err = os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to read summaries file: %s", path)
		return data, err
	}

	// Parse JSON
	err = json.Unmarshal(fileData, &data)
	if err != nil {
		err = errors.Wrapf(err, "failed to parse summaries JSON: %s", path)
		return data, err
	}

	// Validate data
	err = data.Validate()
	if err != nil {
		err = errors.Wrap(err, "summaries validation failed")
		return data, err
	}

	return data, err
}

// Validate checks that the summaries data is well-formed.
func (d *Data) Validate() (err error) {
	if d.Profile.Name == "" {
		err = errors.New("profile name is required")
		return err
	}

	// Validate each achievement has required fields
	for i, achievement := range d.Achievements {
		if achievement.ID == "" {
			err = errors.Errorf("achievement at index %d missing ID", i)
			return err
		}
		if achievement.Company == "" {
			err = errors.Errorf("achievement %s missing company", achievement.ID)
			return err
		}
		if achievement.Title == "" {
			err = errors.Errorf("achievement %s missing title", achievement.ID)
			return err
		}
	}

	return err
}

// ToMaster converts summaries into a master record document. Achievements become work entries,
// one per company and role in first-seen order, with one highlight per achievement.
func ToMaster(d Data) (master map[string]any) {
	master = map[string]any{
		"basics": basics(d.Profile),
	}

	if work := workEntries(d.Achievements); len(work) > 0 {
		master["work"] = work
	}
	if skills := skillEntries(d.Skills); len(skills) > 0 {
		master["skills"] = skills
	}
	if projects := projectEntries(d.OpensourceProjects); len(projects) > 0 {
		master["projects"] = projects
	}

	return master
}

func basics(p Profile) (out map[string]any) {
	out = map[string]any{"name": p.Name}
	setString(out, "label", p.Title)
	setString(out, "email", p.Email)
	setString(out, "summary", p.Motto)
	if p.Location != "" {
		out["location"] = map[string]any{"city": p.Location}
	}

	networks := make([]string, 0, len(p.Profiles))
	for network := range p.Profiles {
		networks = append(networks, network)
	}
	sort.Strings(networks)

	profiles := make([]any, 0, len(networks))
	for _, network := range networks {
		profiles = append(profiles, map[string]any{
			"network": networkName(network),
			"url":     p.Profiles[network],
		})
	}
	if len(profiles) > 0 {
		out["profiles"] = profiles
	}

	return out
}

// networkName maps lowercase keys such as "linkedin" to the display names rule filters match on.
func networkName(key string) (name string) {
	switch strings.ToLower(key) {
	case "linkedin":
		name = "LinkedIn"
	case "github":
		name = "GitHub"
	case "gitlab":
		name = "GitLab"
	default:
		name = key
	}
	return name
}

func workEntries(achievements []Achievement) (work []any) {
	index := make(map[string]map[string]any)

	for _, a := range achievements {
		key := a.Company + "\x00" + a.Role
		entry, seen := index[key]
		if !seen {
			entry = map[string]any{"name": a.Company}
			setString(entry, "position", a.Role)
			start, end := years(a.Dates)
			setString(entry, "startDate", start)
			setString(entry, "endDate", end)
			entry["highlights"] = []any{}
			index[key] = entry
			work = append(work, entry)
		}

		entry["highlights"] = append(entry["highlights"].([]any), highlight(a))
		if len(a.Keywords) > 0 {
			tags, _ := entry["tags"].([]any)
			entry["tags"] = appendUnique(tags, a.Keywords)
		}
	}

	return work
}

func highlight(a Achievement) (text string) {
	text = a.Title
	if a.Impact != "" {
		text += ": " + a.Impact
	}
	return text
}

// years pulls the first and last four-digit years out of free-form ranges like "2019 - Present".
func years(dates string) (start, end string) {
	found := yearPattern.FindAllString(dates, -1)
	if len(found) == 0 {
		return start, end
	}

	start = found[0]
	if len(found) > 1 {
		end = found[len(found)-1]
	}
	return start, end
}

func skillEntries(s Skills) (skills []any) {
	categories := []struct {
		name     string
		keywords []string
	}{
		{"Languages", s.Languages},
		{"Cloud", s.Cloud},
		{"Kubernetes", s.Kubernetes},
		{"Security", s.Security},
		{"Databases", s.Databases},
		{"CI/CD", s.CICD},
		{"Networks", s.Networks},
	}

	for _, c := range categories {
		if len(c.keywords) == 0 {
			continue
		}
		skills = append(skills, map[string]any{
			"name":     c.name,
			"keywords": appendUnique(nil, c.keywords),
		})
	}

	return skills
}

func projectEntries(projects []OpensourceProject) (out []any) {
	for _, p := range projects {
		entry := map[string]any{"name": p.Name}
		setString(entry, "url", p.URL)
		setString(entry, "description", p.Description)
		if p.Recognition != "" {
			entry["highlights"] = []any{p.Recognition}
		}
		out = append(out, entry)
	}
	return out
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func appendUnique(list []any, values []string) (out []any) {
	out = list
	seen := make(map[string]bool, len(list)+len(values))
	for _, v := range list {
		if s, ok := v.(string); ok {
			seen[s] = true
		}
	}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
