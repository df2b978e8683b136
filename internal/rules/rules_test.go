package rules

import (
	"strings"
	"testing"
)

func TestParseDefault(t *testing.T) {
	doc, err := Parse([]byte(Default))
	if err != nil {
		t.Fatalf("Parse(Default): %v", err)
	}
	if len(doc.Types) != 1 || doc.Types[0].Name != "JointStates" {
		t.Fatalf("unexpected types: %+v", doc.Types)
	}
	if len(doc.Types[0].Rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(doc.Types[0].Rules))
	}
	r := doc.Types[0].Rules[0]
	if r.Pattern != "position.#" || r.Alias != "name.#" || r.Substitution != "@.pos" || r.Timestamp != "header.stamp" {
		t.Fatalf("unexpected first rule: %+v", r)
	}
}

func TestValidateRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "malformed xml",
			doc:  `<SubstitutionRules>`,
			want: "invalid XML",
		},
		{
			name: "wrong root",
			doc:  `<Rules></Rules>`,
			want: "root node should be <SubstitutionRules>",
		},
		{
			name: "wrong child",
			doc:  `<SubstitutionRules><Type name="x"/></SubstitutionRules>`,
			want: "children named <RosType>",
		},
		{
			name: "missing type name",
			doc:  `<SubstitutionRules><RosType/></SubstitutionRules>`,
			want: "attribute [name]",
		},
		{
			name: "wrong grandchild",
			doc:  `<SubstitutionRules><RosType name="x"><map pattern="a" alias="b" substitution="c"/></RosType></SubstitutionRules>`,
			want: "children named <rule>",
		},
		{
			name: "rule missing substitution",
			doc:  `<SubstitutionRules><RosType name="x"><rule pattern="a" alias="b"/></RosType></SubstitutionRules>`,
			want: "'pattern', 'alias' and 'substitution'",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Validate([]byte(c.doc))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("error %q does not mention %q", err, c.want)
			}
		})
	}
}

func TestRuleWithoutTimestampIsValid(t *testing.T) {
	doc := `<SubstitutionRules><RosType name="x"><rule pattern="a" alias="b" substitution="c"/></RosType></SubstitutionRules>`
	parsed, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Types[0].Rules[0].Timestamp != "" {
		t.Fatal("timestamp must default to empty")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	doc, err := Parse([]byte(Default))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(again.Types) != len(doc.Types) {
		t.Fatalf("type count changed: %d vs %d", len(again.Types), len(doc.Types))
	}
}
