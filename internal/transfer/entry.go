package transfer

import (
	"fmt"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"gopkg.in/yaml.v3"
)

// entryValue decodes either an entry object or a bare id in every
// supported format.
type entryValue blacklist.Entry

func (e *entryValue) UnmarshalJSON(data []byte) error {
	var entry blacklist.Entry
	if err := entry.UnmarshalJSON(data); err != nil {
		return err
	}
	*e = entryValue(entry)
	return nil
}

func (e *entryValue) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*e = entryValue{ID: value.Value}
		return nil
	}
	var entry blacklist.Entry
	if err := value.Decode(&entry); err != nil {
		return err
	}
	*e = entryValue(entry)
	return nil
}

// UnmarshalTOML receives the already parsed value of one array element.
func (e *entryValue) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		*e = entryValue{ID: v}
		return nil
	case map[string]any:
		id, _ := v["id"].(string)
		entry := entryValue{ID: id}
		switch at := v["addedAt"].(type) {
		case nil:
		case int64:
			entry.AddedAt = at
		default:
			return fmt.Errorf("addedAt must be an integer, got %T", at)
		}
		*e = entry
		return nil
	default:
		return fmt.Errorf("entry must be a string or table, got %T", data)
	}
}
