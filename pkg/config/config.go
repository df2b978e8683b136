package config

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CurveMeta содержит дополнительную информацию о кривой.
type CurveMeta struct {
	Name     string
	TextName string
	Unit     string
}

// Config описывает каталог кривых: известные имена и именованные наборы.
type Config struct {
	Curves []string            `json:"curves"`
	Sets   map[string][]string `json:"sets"`
	Meta   map[string]CurveMeta

	known map[string]struct{}
}

// Load загружает каталог кривых из JSON или XML.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		Sets: map[string][]string{},
		Meta: map[string]CurveMeta{},
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", "":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to decode JSON: %w", err)
		}
		if cfg.Sets == nil {
			cfg.Sets = map[string][]string{}
		}
	case ".xml":
		if err := parseXMLCurves(cfg, data, filepath.Dir(path)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("config: format %s is not supported yet", ext)
	}

	if len(cfg.Curves) == 0 {
		return nil, errors.New("config: curves list is empty")
	}
	cfg.buildIndex()
	return cfg, nil
}

// Resolve возвращает список имён кривых согласно селектору.
// Селектор: "ALL", имя набора из Sets, имя кривой, маска или список через запятую.
func (c *Config) Resolve(selector string) ([]string, error) {
	if c == nil {
		return nil, errors.New("config: configuration is nil")
	}
	if selector == "" || strings.EqualFold(selector, "ALL") {
		return c.allCurves(), nil
	}

	if names, ok := c.Sets[selector]; ok {
		return c.fromSet(selector, names)
	}

	if strings.Contains(selector, ",") {
		parts := strings.Split(selector, ",")
		var result []string
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			resolved, err := c.resolveSingle(part)
			if err != nil {
				return nil, err
			}
			result = append(result, resolved...)
		}
		return result, nil
	}

	return c.resolveSingle(selector)
}

// Has сообщает, известна ли кривая каталогу.
func (c *Config) Has(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.known[name]
	return ok
}

func (c *Config) resolveSingle(selector string) ([]string, error) {
	if c.Has(selector) {
		return []string{selector}, nil
	}
	if strings.ContainsAny(selector, "*?") {
		return c.fromPattern(selector)
	}
	return nil, fmt.Errorf("config: failed to resolve selector %q", selector)
}

func (c *Config) allCurves() []string {
	names := append([]string(nil), c.Curves...)
	sort.Strings(names)
	return names
}

func (c *Config) fromSet(set string, names []string) ([]string, error) {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if !c.Has(name) {
			return nil, fmt.Errorf("config: curve %q from set %q not found", name, set)
		}
		result = append(result, name)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("config: set %q is empty", set)
	}
	return result, nil
}

func (c *Config) fromPattern(pattern string) ([]string, error) {
	var result []string
	for _, name := range c.allCurves() {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("config: invalid pattern %q: %w", pattern, err)
		}
		if ok {
			result = append(result, name)
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("config: pattern %q matched nothing", pattern)
	}
	return result, nil
}

func (c *Config) buildIndex() {
	c.known = make(map[string]struct{}, len(c.Curves))
	for _, name := range c.Curves {
		c.known[name] = struct{}{}
	}
}

type xmlCurves struct {
	Items    []xmlCurve   `xml:"item"`
	Includes []xmlInclude `xml:"http://www.w3.org/2001/XInclude include"`
}

type xmlInclude struct {
	Href string `xml:"href,attr"`
}

type xmlCurve struct {
	Name     string `xml:"name,attr"`
	TextName string `xml:"textname,attr"`
	Unit     string `xml:"unit,attr"`
}

func parseXMLCurves(cfg *Config, data []byte, baseDir string) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("config: XML read error: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if strings.EqualFold(start.Name.Local, "curves") {
			var block xmlCurves
			if err := decoder.DecodeElement(&block, &start); err != nil {
				return fmt.Errorf("config: failed to parse <curves>: %w", err)
			}
			addXMLCurves(cfg, block.Items)
			for _, incl := range block.Includes {
				if incl.Href == "" {
					continue
				}
				includePath := incl.Href
				if !filepath.IsAbs(includePath) {
					includePath = filepath.Join(baseDir, includePath)
				}
				if err := loadIncludedCurves(cfg, includePath); err != nil {
					return err
				}
			}
			break
		}
	}
	if len(cfg.Curves) == 0 {
		return errors.New("config: <curves> block not found in XML")
	}
	return nil
}

func addXMLCurves(cfg *Config, items []xmlCurve) {
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		if _, exists := cfg.Meta[item.Name]; exists {
			continue
		}
		cfg.Curves = append(cfg.Curves, item.Name)
		cfg.Meta[item.Name] = CurveMeta{
			Name:     item.Name,
			TextName: item.TextName,
			Unit:     item.Unit,
		}
	}
}

func loadIncludedCurves(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read include %s: %w", path, err)
	}
	var block struct {
		Items []xmlCurve `xml:"item"`
	}
	if err := xml.Unmarshal(data, &block); err != nil {
		return fmt.Errorf("config: parse include %s: %w", path, err)
	}
	addXMLCurves(cfg, block.Items)
	return nil
}
