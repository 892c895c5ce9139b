package ast

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts both the kebab-case keys the compiler emits and their
// camelCase spellings.
func (a *AST) UnmarshalJSON(data []byte) error {
	type plain AST
	var raw struct {
		plain
		SelectedTablesCamel []Table `json:"selectedTables"`
		ErrorTypeCamel      string  `json:"errorType"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = AST(raw.plain)
	if len(a.SelectedTables) == 0 && len(raw.SelectedTablesCamel) > 0 {
		a.SelectedTables = raw.SelectedTablesCamel
	}
	if a.ErrorType == "" {
		a.ErrorType = raw.ErrorTypeCamel
	}
	return nil
}

// UnmarshalJSON decodes a [from, to, relation] triple. The relation is either
// a single qualifier string or an array whose string elements are kept.
func (j *Join) UnmarshalJSON(data []byte) error {
	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("ast: join must be an array: %w", err)
	}
	if len(triple) < 2 {
		return fmt.Errorf("ast: join has %d elements, need at least 2", len(triple))
	}
	if err := json.Unmarshal(triple[0], &j.From); err != nil {
		return fmt.Errorf("ast: join source: %w", err)
	}
	if err := json.Unmarshal(triple[1], &j.To); err != nil {
		return fmt.Errorf("ast: join target: %w", err)
	}
	j.Relation = nil
	if len(triple) < 3 {
		return nil
	}
	var single string
	if err := json.Unmarshal(triple[2], &single); err == nil {
		j.Relation = []string{single}
		return nil
	}
	var parts []any
	if err := json.Unmarshal(triple[2], &parts); err != nil {
		return fmt.Errorf("ast: join relation: %w", err)
	}
	for _, p := range parts {
		if s, ok := p.(string); ok {
			j.Relation = append(j.Relation, s)
		}
	}
	return nil
}

// MarshalJSON encodes the join back into its triple form.
func (j Join) MarshalJSON() ([]byte, error) {
	rel := j.Relation
	if rel == nil {
		rel = []string{}
	}
	return json.Marshal([]any{j.From, j.To, rel})
}

// UnmarshalJSON accepts {"alias": .., "column": ..} or [alias, column].
func (c *ColumnRef) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) < 2 {
			return fmt.Errorf("ast: column ref has %d elements, need 2", len(pair))
		}
		c.Alias, c.Column = pair[0], pair[1]
		return nil
	}
	var obj struct {
		Alias  string `json:"alias"`
		Column string `json:"column"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("ast: column ref: %w", err)
	}
	c.Alias, c.Column = obj.Alias, obj.Column
	return nil
}

// MarshalJSON encodes the ref as an object.
func (c ColumnRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"alias": c.Alias, "column": c.Column})
}
