package registers

import (
	"fmt"
	"sort"

	"codeberg.org/mutker/ecctl/internal/ec"
	"codeberg.org/mutker/ecctl/internal/errors"
)

// Access marks whether a register may be written.
type Access string

const (
	ReadOnly  Access = "r"
	ReadWrite Access = "rw"
)

// Curve slot value bounds.
const (
	CurveTempMax = 100
	CurveDutyMax = 0xFF
)

// SafeRange is the inclusive set of values that may be written to a register.
type SafeRange struct {
	Min byte
	Max byte
}

// Contains reports whether v lies within the range.
func (r SafeRange) Contains(v byte) bool {
	return v >= r.Min && v <= r.Max
}

func (r SafeRange) String() string {
	return fmt.Sprintf("[0x%02X,0x%02X]", r.Min, r.Max)
}

// FanScale converts a raw fan speed register into percent and RPM.
type FanScale struct {
	PercentDivisor float64
	RPMMultiplier  int
}

// Entry is one allowlisted register.
type Entry struct {
	Tag          Tag
	Address      byte
	Access       Access
	Range        SafeRange
	CurveStorage bool
	Scale        *FanScale
	Sysfs        *ec.SysfsAttribute
}

// Writable reports whether the entry accepts writes at all.
func (e Entry) Writable() bool {
	return e.Access == ReadWrite
}

// CurveSlot pairs the temperature and duty registers of one hardware curve point.
type CurveSlot struct {
	Index int
	Temp  Entry
	Duty  Entry
}

// Map is the immutable register table of one model.
type Map struct {
	model    string
	fallback bool
	byTag    map[Tag]Entry
	byAddr   map[byte]Entry
	curves   map[Fan][]CurveSlot
}

// NewMap validates entries and builds a Map. Addresses and tags must be
// unique; writable entries need a non-empty range, read-only entries none.
func NewMap(model string, entries []Entry) (*Map, error) {
	errFactory := errors.New()

	m := &Map{
		model:  model,
		byTag:  make(map[Tag]Entry, len(entries)),
		byAddr: make(map[byte]Entry, len(entries)),
		curves: make(map[Fan][]CurveSlot),
	}

	for _, e := range entries {
		if e.Tag == "" {
			return nil, errFactory.WithData(ErrInvalidTable, fmt.Sprintf("%s: entry at 0x%02X has no tag", model, e.Address))
		}
		if _, dup := m.byTag[e.Tag]; dup {
			return nil, errFactory.WithData(ErrInvalidTable, fmt.Sprintf("%s: duplicate tag %s", model, e.Tag))
		}
		if prev, dup := m.byAddr[e.Address]; dup {
			return nil, errFactory.WithData(ErrInvalidTable,
				fmt.Sprintf("%s: 0x%02X used by %s and %s", model, e.Address, prev.Tag, e.Tag))
		}

		switch e.Access {
		case ReadWrite:
			if e.Range.Min > e.Range.Max {
				return nil, errFactory.WithData(ErrInvalidTable, fmt.Sprintf("%s: %s has empty range %s", model, e.Tag, e.Range))
			}
		case ReadOnly:
			if e.Range != (SafeRange{}) || e.CurveStorage {
				return nil, errFactory.WithData(ErrInvalidTable, fmt.Sprintf("%s: read-only %s carries write data", model, e.Tag))
			}
		default:
			return nil, errFactory.WithData(ErrInvalidTable, fmt.Sprintf("%s: %s has access %q", model, e.Tag, e.Access))
		}

		m.byTag[e.Tag] = e
		m.byAddr[e.Address] = e
	}

	for _, f := range Fans {
		for slot := 1; ; slot++ {
			temp, okTemp := m.byTag[CurveTempTag(f, slot)]
			duty, okDuty := m.byTag[CurveDutyTag(f, slot)]
			if !okTemp || !okDuty {
				break
			}
			m.curves[f] = append(m.curves[f], CurveSlot{Index: slot, Temp: temp, Duty: duty})
		}
	}

	return m, nil
}

// Model returns the table name.
func (m *Map) Model() string {
	return m.model
}

// IsFallback reports whether the map is the conservative table used for
// unrecognized models.
func (m *Map) IsFallback() bool {
	return m.fallback
}

// Lookup returns the entry for tag.
func (m *Map) Lookup(tag Tag) (Entry, bool) {
	e, ok := m.byTag[tag]
	return e, ok
}

// ByAddress returns the entry at addr.
func (m *Map) ByAddress(addr byte) (Entry, bool) {
	e, ok := m.byAddr[addr]
	return e, ok
}

// Has reports whether tag is in the table.
func (m *Map) Has(tag Tag) bool {
	_, ok := m.byTag[tag]
	return ok
}

// CurveSlots returns a fan's curve slots in write order.
func (m *Map) CurveSlots(f Fan) []CurveSlot {
	return m.curves[f]
}

// Entries returns every entry ordered by address.
func (m *Map) Entries() []Entry {
	out := make([]Entry, 0, len(m.byAddr))
	for _, e := range m.byAddr {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })

	return out
}

// SysfsAttributes returns the kernel module attribute of every entry that has one.
func (m *Map) SysfsAttributes() map[byte]ec.SysfsAttribute {
	attrs := make(map[byte]ec.SysfsAttribute)
	for addr, e := range m.byAddr {
		if e.Sysfs != nil {
			attrs[addr] = *e.Sysfs
		}
	}

	return attrs
}
