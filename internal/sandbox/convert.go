package sandbox

import (
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// Record is one validated entry returned by extract_tools.
type Record struct {
	Name        string
	Description string
	URL         string
	Tags        []string
}

var requiredFields = []string{"name", "description", "url"}

// validateResult checks that v is an array of records that each carry name,
// description and url. Any bad element fails the whole result.
func validateResult(v lua.LValue) ([]Record, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, newError(KindValidation, nil, "result must be a list, got %s", v.Type())
	}

	n, err := arrayLen(tbl)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		rec, err := toRecord(i, tbl.RawGetInt(i))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// arrayLen returns n when tbl holds exactly the keys 1..n.
func arrayLen(tbl *lua.LTable) (int, error) {
	keys := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { keys++ })

	for i := 1; i <= keys; i++ {
		if tbl.RawGetInt(i) == lua.LNil {
			return 0, newError(KindValidation, nil, "result must be a list, got a table with non-sequential keys")
		}
	}
	return keys, nil
}

func toRecord(index int, v lua.LValue) (Record, error) {
	item, ok := v.(*lua.LTable)
	if !ok {
		return Record{}, newError(KindValidation, nil, "item %d must be a table, got %s", index, v.Type())
	}

	values := make(map[string]string, len(requiredFields))
	for _, field := range requiredFields {
		s, ok := scalarString(item.RawGetString(field))
		if !ok {
			return Record{}, newError(KindValidation, nil, "item %d is missing required field %q", index, field)
		}
		values[field] = s
	}

	tags, err := toTags(index, item.RawGetString("tags"))
	if err != nil {
		return Record{}, err
	}

	return Record{
		Name:        values["name"],
		Description: values["description"],
		URL:         values["url"],
		Tags:        tags,
	}, nil
}

func scalarString(v lua.LValue) (string, bool) {
	switch val := v.(type) {
	case lua.LString:
		return string(val), true
	case lua.LNumber:
		return val.String(), true
	default:
		return "", false
	}
}

func toTags(index int, v lua.LValue) ([]string, error) {
	if v == lua.LNil {
		return nil, nil
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, newError(KindValidation, nil, "item %d tags must be a list, got %s", index, v.Type())
	}

	n, err := arrayLen(tbl)
	if err != nil {
		return nil, newError(KindValidation, err, "item %d tags must be a list", index)
	}

	tags := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		s, ok := scalarString(tbl.RawGetInt(i))
		if !ok {
			return nil, newError(KindValidation, nil, "item %d tag %d must be a string", index, i)
		}
		tags = append(tags, s)
	}
	return tags, nil
}

// ToTools maps records 1:1 to catalog entries with fresh ids. Duplicates are
// kept; the tool store merges them.
func ToTools(records []Record, sourceURL string, now time.Time) []domain.MCPTool {
	now = now.UTC()
	tools := make([]domain.MCPTool, 0, len(records))

	for _, rec := range records {
		description := rec.Description
		if description == "" {
			description = rec.Name
		}

		tags := rec.Tags
		if tags == nil {
			tags = []string{}
		}

		tools = append(tools, domain.MCPTool{
			ID:              "tool-" + uuid.NewString(),
			Name:            rec.Name,
			Description:     description,
			URL:             rec.URL,
			SourceURL:       sourceURL,
			FirstDiscovered: now,
			LastUpdated:     now,
			Metadata:        map[string]any{"tags": tags},
		})
	}
	return tools
}
