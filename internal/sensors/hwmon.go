package sensors

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/ecctl/internal/errors"
)

// DefaultHwmonRoot is the kernel hwmon class directory.
const DefaultHwmonRoot = "/sys/class/hwmon"

// DefaultChips are the hwmon drivers reporting CPU package temperatures.
var DefaultChips = []string{"coretemp", "k10temp", "zenpower"}

// Hwmon reads temperature inputs of selected hwmon chips.
type Hwmon struct {
	root  string
	chips map[string]bool
}

func NewHwmon(root string, chips ...string) *Hwmon {
	if root == "" {
		root = DefaultHwmonRoot
	}
	if len(chips) == 0 {
		chips = DefaultChips
	}

	h := &Hwmon{root: root, chips: make(map[string]bool, len(chips))}
	for _, c := range chips {
		h.chips[c] = true
	}

	return h
}

func (h *Hwmon) Name() string {
	return "hwmon"
}

// Read returns every tempN_input of the matching chips, in millidegrees
// converted to degrees.
func (h *Hwmon) Read(context.Context) ([]Reading, error) {
	dirs, err := filepath.Glob(filepath.Join(h.root, "hwmon*"))
	if err != nil {
		return nil, errors.New().Wrap(ErrTemperatureReadFailed, err)
	}
	sort.Strings(dirs)

	var out []Reading
	found := false
	for _, dir := range dirs {
		chip := readTrimmed(filepath.Join(dir, "name"))
		if !h.chips[chip] {
			continue
		}
		found = true

		inputs, _ := filepath.Glob(filepath.Join(dir, "temp*_input"))
		sort.Strings(inputs)
		for _, input := range inputs {
			milli, err := strconv.Atoi(readTrimmed(input))
			if err != nil {
				continue
			}

			label := readTrimmed(strings.TrimSuffix(input, "_input") + "_label")
			if label == "" {
				label = strings.TrimSuffix(filepath.Base(input), "_input")
			}

			out = append(out, Reading{Source: chip, Label: label, Celsius: float64(milli) / 1000})
		}
	}

	if !found {
		return nil, errors.New().WithData(ErrNoHwmon, h.root)
	}

	return out, nil
}

func (h *Hwmon) Close() error {
	return nil
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
