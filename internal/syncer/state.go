package syncer

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// stateConfig — сериализуемый фрагмент состояния плагина.
type stateConfig struct {
	XMLName   xml.Name `xml:"config"`
	VideoFile string   `xml:"video_file,attr"`
	CurveName string   `xml:"curve_name,attr"`
	UseFrame  bool     `xml:"use_frame,attr"`
}

// SaveState сериализует конфигурацию в XML-фрагмент <config .../>.
func (s *Synchronizer) SaveState() ([]byte, error) {
	opts := s.Snapshot()
	data, err := xml.Marshal(stateConfig{
		VideoFile: opts.VideoFile,
		CurveName: opts.CurveName,
		UseFrame:  opts.UseFrame,
	})
	if err != nil {
		return nil, fmt.Errorf("syncer: marshal state: %w", err)
	}
	return data, nil
}

// LoadState восстанавливает конфигурацию из XML. Принимает как сам фрагмент
// <config/>, так и документ, содержащий его среди потомков. Если фрагмент
// не найден, состояние не меняется.
func (s *Synchronizer) LoadState(data []byte) error {
	cfg, err := findConfig(data)
	if err != nil {
		return err
	}
	s.Apply(Options{
		VideoFile: cfg.VideoFile,
		CurveName: cfg.CurveName,
		UseFrame:  cfg.UseFrame,
	})
	return nil
}

func findConfig(data []byte) (stateConfig, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return stateConfig{}, errors.New("syncer: <config> element not found")
			}
			return stateConfig{}, fmt.Errorf("syncer: parse state: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if strings.EqualFold(start.Name.Local, "config") {
			var cfg stateConfig
			if err := decoder.DecodeElement(&cfg, &start); err != nil {
				return stateConfig{}, fmt.Errorf("syncer: decode <config>: %w", err)
			}
			return cfg, nil
		}
	}
}
