package ec

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/ecctl/internal/errors"
)

// Sysfs accesses a subset of EC registers through the attributes exported by
// the msi-ec kernel module.
type Sysfs struct {
	dir   string
	attrs map[byte]SysfsAttribute
}

// NewSysfs returns a KernelModuleSysfs backend rooted at dir. attrs lists the
// addresses reachable through the module.
func NewSysfs(dir string, attrs map[byte]SysfsAttribute) *Sysfs {
	return &Sysfs{dir: dir, attrs: attrs}
}

func (s *Sysfs) Kind() Kind { return KernelModuleSysfs }

func (s *Sysfs) Supports(addr byte) bool {
	_, ok := s.attrs[addr]
	return ok
}

func (s *Sysfs) Probe(ctx context.Context) error {
	errFactory := errors.New()

	if _, err := os.Stat(s.dir); err != nil {
		return classifyOpen(err)
	}

	addrs := make([]int, 0, len(s.attrs))
	for addr := range s.attrs {
		addrs = append(addrs, int(addr))
	}
	sort.Ints(addrs)

	var lastErr error
	for _, addr := range addrs {
		f, err := os.Open(filepath.Join(s.dir, s.attrs[byte(addr)].Name))
		if err != nil {
			lastErr = classifyOpen(err)
			continue
		}
		f.Close()

		return nil
	}

	if lastErr != nil {
		return lastErr
	}

	return errFactory.WithMessage(ErrNotPresent, "no readable msi-ec attributes")
}

func (s *Sysfs) ReadByte(ctx context.Context, addr byte) (byte, error) {
	attr, ok := s.attrs[addr]
	if !ok {
		return 0, errors.New().WithData(ErrUnsupported, addr)
	}

	var value byte
	err := withRetry(ctx, "sysfs read", func() error {
		data, err := os.ReadFile(filepath.Join(s.dir, attr.Name))
		if err != nil {
			return err
		}

		v, err := decodeAttr(attr, strings.TrimSpace(string(data)))
		if err != nil {
			return err
		}
		value = v

		return nil
	})

	return value, err
}

func (s *Sysfs) WriteByte(ctx context.Context, addr, value byte) error {
	attr, ok := s.attrs[addr]
	if !ok {
		return errors.New().WithData(ErrUnsupported, addr)
	}

	text, err := encodeAttr(attr, value)
	if err != nil {
		return err
	}

	return withRetry(ctx, "sysfs write", func() error {
		return os.WriteFile(filepath.Join(s.dir, attr.Name), []byte(text), 0o644)
	})
}

func (s *Sysfs) Close() error { return nil }

func decodeAttr(attr SysfsAttribute, text string) (byte, error) {
	errFactory := errors.New()

	if attr.Values != nil {
		v, ok := attr.Values[text]
		if !ok {
			return 0, errFactory.WithData(ErrBadValue, attr.Name+"="+text)
		}
		return v, nil
	}

	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errFactory.WrapWithData(ErrBadValue, err, attr.Name)
	}
	if attr.Scale != 0 {
		n *= attr.Scale
	}

	return byte(math.Max(0, math.Min(255, math.Round(n)))), nil
}

func encodeAttr(attr SysfsAttribute, value byte) (string, error) {
	if attr.Values != nil {
		for text, v := range attr.Values {
			if v == value {
				return text, nil
			}
		}
		return "", errors.New().WithData(ErrUnsupported, attr.Name)
	}

	if attr.Scale != 0 {
		return strconv.Itoa(int(math.Round(float64(value) / attr.Scale))), nil
	}

	return strconv.Itoa(int(value)), nil
}
