package rules

import (
	"encoding/xml"
	"fmt"
)

// Default — стартовый набор правил подстановки имён.
const Default = `<SubstitutionRules>

<RosType name="JointStates">
  <rule pattern="position.#" alias="name.#" substitution="@.pos" timestamp="header.stamp"/>
  <rule pattern="velocity.#" alias="name.#" substitution="@.vel" timestamp="header.stamp"/>
  <rule pattern="effort.#"   alias="name.#" substitution="@.eff" timestamp="header.stamp"/>
</RosType>

</SubstitutionRules>
`

// Rule описывает одну подстановку: pattern переименовывается по alias/substitution.
type Rule struct {
	Pattern      string `xml:"pattern,attr"`
	Alias        string `xml:"alias,attr"`
	Substitution string `xml:"substitution,attr"`
	Timestamp    string `xml:"timestamp,attr"`
}

// TypeRules — набор правил для одного типа сообщений.
type TypeRules struct {
	Name  string `xml:"name,attr"`
	Rules []Rule `xml:"rule"`
}

// Document — разобранный документ правил.
type Document struct {
	XMLName xml.Name    `xml:"SubstitutionRules"`
	Types   []TypeRules `xml:"RosType"`
}

// Parse разбирает и валидирует документ правил.
func Parse(data []byte) (*Document, error) {
	var probe struct {
		XMLName xml.Name
		Children []struct {
			XMLName xml.Name
			Name    string `xml:"name,attr"`
			Rules   []struct {
				XMLName      xml.Name
				Pattern      *string `xml:"pattern,attr"`
				Alias        *string `xml:"alias,attr"`
				Substitution *string `xml:"substitution,attr"`
				Timestamp    string  `xml:"timestamp,attr"`
			} `xml:",any"`
		} `xml:",any"`
	}
	if err := xml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("rules: invalid XML: %w", err)
	}
	if probe.XMLName.Local != "SubstitutionRules" {
		return nil, fmt.Errorf("rules: the root node should be <SubstitutionRules>")
	}

	doc := &Document{}
	for _, typeEl := range probe.Children {
		if typeEl.XMLName.Local != "RosType" {
			return nil, fmt.Errorf("rules: <SubstitutionRules> must have children named <RosType>")
		}
		if typeEl.Name == "" {
			return nil, fmt.Errorf("rules: node <RosType> must have the attribute [name]")
		}
		tr := TypeRules{Name: typeEl.Name}
		for _, ruleEl := range typeEl.Rules {
			if ruleEl.XMLName.Local != "rule" {
				return nil, fmt.Errorf("rules: <RosType> must have children named <rule>")
			}
			if ruleEl.Pattern == nil || ruleEl.Alias == nil || ruleEl.Substitution == nil {
				return nil, fmt.Errorf("rules: <rule> must have the attributes 'pattern', 'alias' and 'substitution'")
			}
			tr.Rules = append(tr.Rules, Rule{
				Pattern:      *ruleEl.Pattern,
				Alias:        *ruleEl.Alias,
				Substitution: *ruleEl.Substitution,
				Timestamp:    ruleEl.Timestamp,
			})
		}
		doc.Types = append(doc.Types, tr)
	}
	return doc, nil
}

// Validate проверяет документ без сохранения результата разбора.
func Validate(data []byte) error {
	_, err := Parse(data)
	return err
}

// Marshal сериализует документ обратно в XML.
func (d *Document) Marshal() ([]byte, error) {
	data, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rules: marshal: %w", err)
	}
	return data, nil
}
