package registers

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDMIDir is where the kernel exposes the DMI identity strings.
const DefaultDMIDir = "/sys/class/dmi/id"

// Identity holds the DMI strings used to pick a register table.
type Identity struct {
	Vendor  string
	Product string
	Board   string
}

// DetectIdentity reads the DMI strings under dir. Unreadable fields are left empty.
func DetectIdentity(dir string) Identity {
	return Identity{
		Vendor:  readDMI(dir, "sys_vendor"),
		Product: readDMI(dir, "product_name"),
		Board:   readDMI(dir, "board_name"),
	}
}

// IsMSI reports whether the vendor string names Micro-Star International.
func (id Identity) IsMSI() bool {
	v := strings.ToLower(id.Vendor)
	return strings.Contains(v, "micro-star") || strings.Contains(v, "msi")
}

func readDMI(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
