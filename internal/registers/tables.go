package registers

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"codeberg.org/mutker/ecctl/internal/ec"
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/logger"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var builtinTables []byte

// Table is a register map with the DMI patterns that select it.
type Table struct {
	Vendors  []string
	Products []string
	Map      *Map
}

type tableFile struct {
	Tables []tableDoc `yaml:"tables"`
}

type tableDoc struct {
	Model     string        `yaml:"model"`
	Fallback  bool          `yaml:"fallback"`
	Match     matchDoc      `yaml:"match"`
	Registers []registerDoc `yaml:"registers"`
	Curves    []curveDoc    `yaml:"curves"`
}

type matchDoc struct {
	Vendors  []string `yaml:"vendors"`
	Products []string `yaml:"products"`
}

type registerDoc struct {
	Tag     string    `yaml:"tag"`
	Address int       `yaml:"address"`
	Access  string    `yaml:"access"`
	Range   []int     `yaml:"range"`
	Scale   *scaleDoc `yaml:"scale"`
	Sysfs   *sysfsDoc `yaml:"sysfs"`
}

type scaleDoc struct {
	PercentDivisor float64 `yaml:"percent_divisor"`
	RPMMultiplier  int     `yaml:"rpm_multiplier"`
}

type sysfsDoc struct {
	Name   string         `yaml:"name"`
	Values map[string]int `yaml:"values"`
	Scale  float64        `yaml:"scale"`
}

type curveDoc struct {
	Fan   string `yaml:"fan"`
	Base  int    `yaml:"base"`
	Slots int    `yaml:"slots"`
}

// LoadTables returns the user tables from userFile, if set, followed by the
// built-in tables. A user table with the same model name as a built-in one
// replaces it.
func LoadTables(userFile string) ([]Table, error) {
	errFactory := errors.New()

	builtin, err := ParseTables(builtinTables)
	if err != nil {
		return nil, err
	}

	if userFile == "" {
		return builtin, nil
	}

	data, err := os.ReadFile(userFile)
	if err != nil {
		return nil, errFactory.WrapWithData(ErrLoadTable, err, userFile)
	}

	user, err := ParseTables(data)
	if err != nil {
		return nil, err
	}

	replaced := make(map[string]bool, len(user))
	for _, t := range user {
		replaced[strings.ToLower(t.Map.Model())] = true
	}

	tables := append([]Table{}, user...)
	for _, t := range builtin {
		if replaced[strings.ToLower(t.Map.Model())] {
			logger.Debug().Str("model", t.Map.Model()).Str("file", userFile).Msg("Register table replaced")
			continue
		}
		tables = append(tables, t)
	}

	return tables, nil
}

// ParseTables decodes and validates YAML register tables.
func ParseTables(data []byte) ([]Table, error) {
	errFactory := errors.New()

	var doc tableFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errFactory.Wrap(ErrLoadTable, err)
	}

	tables := make([]Table, 0, len(doc.Tables))
	for _, td := range doc.Tables {
		if td.Model == "" {
			return nil, errFactory.WithData(ErrInvalidTable, "table without model name")
		}

		entries, err := td.entries()
		if err != nil {
			return nil, err
		}

		m, err := NewMap(td.Model, entries)
		if err != nil {
			return nil, err
		}
		m.fallback = td.Fallback

		tables = append(tables, Table{
			Vendors:  td.Match.Vendors,
			Products: td.Match.Products,
			Map:      m,
		})
	}

	return tables, nil
}

func (td tableDoc) entries() ([]Entry, error) {
	errFactory := errors.New()
	invalid := func(format string, args ...any) error {
		return errFactory.WithData(ErrInvalidTable, td.Model+": "+fmt.Sprintf(format, args...))
	}

	entries := make([]Entry, 0, len(td.Registers))
	for _, rd := range td.Registers {
		if rd.Address < 0 || rd.Address > 0xFF {
			return nil, invalid("%s address %d out of range", rd.Tag, rd.Address)
		}

		e := Entry{
			Tag:     Tag(rd.Tag),
			Address: byte(rd.Address),
			Access:  Access(rd.Access),
		}

		if len(rd.Range) > 0 {
			if len(rd.Range) != 2 || rd.Range[0] < 0 || rd.Range[1] > 0xFF {
				return nil, invalid("%s range must be [min, max] within 0x00..0xFF", rd.Tag)
			}
			e.Range = SafeRange{Min: byte(rd.Range[0]), Max: byte(rd.Range[1])}
		} else if e.Access == ReadWrite {
			return nil, invalid("writable %s needs a range", rd.Tag)
		}

		if rd.Scale != nil {
			if rd.Scale.PercentDivisor <= 0 {
				return nil, invalid("%s scale needs a positive percent_divisor", rd.Tag)
			}
			e.Scale = &FanScale{PercentDivisor: rd.Scale.PercentDivisor, RPMMultiplier: rd.Scale.RPMMultiplier}
		}

		if rd.Sysfs != nil {
			attr := ec.SysfsAttribute{Name: rd.Sysfs.Name, Scale: rd.Sysfs.Scale}
			if rd.Sysfs.Values != nil {
				attr.Values = make(map[string]byte, len(rd.Sysfs.Values))
				for text, v := range rd.Sysfs.Values {
					if v < 0 || v > 0xFF {
						return nil, invalid("%s sysfs value %q out of range", rd.Tag, text)
					}
					attr.Values[text] = byte(v)
				}
			}
			e.Sysfs = &attr
		}

		entries = append(entries, e)
	}

	for _, cd := range td.Curves {
		f, ok := ParseFan(cd.Fan)
		if !ok {
			return nil, invalid("curve for unknown fan %q", cd.Fan)
		}
		if cd.Slots <= 0 || cd.Base < 0 || cd.Base+2*cd.Slots-1 > 0xFF {
			return nil, invalid("%s curve at 0x%02X with %d slots does not fit", f, cd.Base, cd.Slots)
		}

		for slot := 1; slot <= cd.Slots; slot++ {
			addr := byte(cd.Base + 2*(slot-1))
			entries = append(entries,
				Entry{
					Tag:          CurveTempTag(f, slot),
					Address:      addr,
					Access:       ReadWrite,
					Range:        SafeRange{Min: 0, Max: CurveTempMax},
					CurveStorage: true,
				},
				Entry{
					Tag:          CurveDutyTag(f, slot),
					Address:      addr + 1,
					Access:       ReadWrite,
					Range:        SafeRange{Min: 0, Max: CurveDutyMax},
					CurveStorage: true,
				},
			)
		}
	}

	return entries, nil
}

// Select picks the table for id. A non-empty model names a table directly.
// Without a match the fallback table is returned.
func Select(tables []Table, id Identity, model string) (*Map, error) {
	errFactory := errors.New()

	if model != "" {
		for _, t := range tables {
			if strings.EqualFold(t.Map.Model(), model) {
				return t.Map, nil
			}
		}
		return nil, errFactory.WithData(errors.ErrInvalidConfig, "unknown model "+model)
	}

	var fallback *Map
	for _, t := range tables {
		if t.Map.IsFallback() {
			if fallback == nil {
				fallback = t.Map
			}
			continue
		}
		if t.matches(id) {
			return t.Map, nil
		}
	}

	if fallback == nil {
		return nil, errFactory.WithData(ErrInvalidTable, "no fallback table")
	}

	logger.Warn().
		Str("vendor", id.Vendor).
		Str("product", id.Product).
		Str("table", fallback.Model()).
		Msg("Unrecognized model, using read-only conservative register table")

	return fallback, nil
}

func (t Table) matches(id Identity) bool {
	if len(t.Vendors) == 0 || !containsAny(id.Vendor, t.Vendors) {
		return false
	}
	if len(t.Products) == 0 {
		return true
	}

	return containsAny(id.Product, t.Products) || containsAny(id.Board, t.Products)
}

func containsAny(s string, patterns []string) bool {
	s = strings.ToLower(s)
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(s, strings.ToLower(p)) {
			return true
		}
	}

	return false
}
