package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/nsh"
)

// TemplateConfig describes an NSH header to push, as written in a template file:
//
//	md_type: 1
//	ttl: 63
//	spi: 0x100
//	si: 255
//	context: [1, 2, 3, 4]
//
// MD type 2 headers list their metadata under tlvs, values in hex:
//
//	md_type: 2
//	tlvs:
//	  - {class: 0x0102, type: 7, value: "aabbcc"}
type TemplateConfig struct {
	MDType  uint8       `yaml:"md_type"`
	Flags   uint8       `yaml:"flags"`
	TTL     *uint8      `yaml:"ttl"`
	SPI     uint32      `yaml:"spi"`
	SI      uint8       `yaml:"si"`
	Context []uint32    `yaml:"context"`
	TLVs    []TLVConfig `yaml:"tlvs"`
}

// TLVConfig is one MD type 2 context header.
type TLVConfig struct {
	Class uint16 `yaml:"class"`
	Type  uint8  `yaml:"type"`
	Value string `yaml:"value"`
}

// LoadTemplate reads and builds the template in path.
func LoadTemplate(path string) (*nsh.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	tmpl, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return tmpl, nil
}

// ParseTemplate builds a template from its YAML description. A missing TTL
// defaults to the maximum.
func ParseTemplate(data []byte) (*nsh.Template, error) {
	var tc TemplateConfig
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tc.Build()
}

// Build turns the description into a validated template.
func (tc *TemplateConfig) Build() (*nsh.Template, error) {
	f := nsh.Fields{
		Flags: tc.Flags,
		TTL:   nsh.MaxTTL,
		SPI:   tc.SPI,
		SI:    tc.SI,
	}
	if tc.TTL != nil {
		f.TTL = *tc.TTL
	}

	switch nsh.MDType(tc.MDType) {
	case nsh.MDType1:
		if len(tc.TLVs) > 0 {
			return nil, fmt.Errorf("md type 1 template with tlvs: %w", core.ErrInvalidHeader)
		}
		if len(tc.Context) > 4 {
			return nil, fmt.Errorf("md type 1 carries 4 context words, got %d: %w", len(tc.Context), core.ErrInvalidHeader)
		}
		var ctx [4]uint32
		copy(ctx[:], tc.Context)
		return nsh.NewMD1Template(f, ctx)

	case nsh.MDType2:
		if len(tc.Context) > 0 {
			return nil, fmt.Errorf("md type 2 template with fixed context: %w", core.ErrInvalidHeader)
		}
		tlvs := make([]nsh.TLV, 0, len(tc.TLVs))
		for i, t := range tc.TLVs {
			value, err := hex.DecodeString(strings.TrimPrefix(t.Value, "0x"))
			if err != nil {
				return nil, fmt.Errorf("tlvs[%d].value: %w: %v", i, core.ErrInvalidHeader, err)
			}
			tlvs = append(tlvs, nsh.TLV{Class: t.Class, Type: t.Type, Value: value})
		}
		return nsh.NewMD2Template(f, tlvs)

	default:
		return nil, fmt.Errorf("md_type %d (must be 1 or 2): %w", tc.MDType, core.ErrInvalidHeader)
	}
}
