// Package catalog loads and filters the resource inventory that drives a
// pricing batch. Normalization of SKU, region and OS strings happens here,
// at the ingestion boundary, so every downstream lookup sees one spelling.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// ErrEmptyCatalog indicates the inventory contained no usable resources.
// This is a precondition failure: pricing never starts on an empty fleet.
var ErrEmptyCatalog = errors.New("catalog is empty")

const (
	// OSLinux is the normalized Linux operating system value.
	OSLinux = "linux"
	// OSWindows is the normalized Windows operating system value.
	OSWindows = "windows"
)

// ResourceDescriptor identifies one VM to price. Immutable once loaded.
type ResourceDescriptor struct {
	Name                   string  `json:"vm_name"`
	SKU                    string  `json:"sku"`
	Region                 string  `json:"region"`
	OS                     string  `json:"os"`
	OSName                 string  `json:"os_name,omitempty"`
	Tags                   string  `json:"tags,omitempty"`
	HoursPerMonth          float64 `json:"hours_per_month,omitempty"`
	ProjectedAnnualSavings float64 `json:"projected_annual_savings,omitempty"`

	// PowerState is only present on raw inventory records; running VMs
	// carry "VM running". Descriptors surviving Load are always running.
	PowerState string `json:"power_state,omitempty"`
}

// Catalog is the normalized fleet under analysis.
type Catalog struct {
	Resources []ResourceDescriptor `json:"resources"`
}

// Load decodes an inventory report and normalizes it into a Catalog.
//
// Records for stopped VMs are dropped, duplicate VM names keep their first
// occurrence, and SKU/region/OS strings are normalized. An inventory that
// is undecodable, or empty after filtering, is a fatal precondition error.
func Load(r io.Reader, defaultHours float64) (*Catalog, error) {
	var raw []ResourceDescriptor
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]ResourceDescriptor, 0, len(raw))
	for _, rec := range raw {
		if !isRunning(rec.PowerState) {
			continue
		}
		if rec.Name == "" || rec.SKU == "" || rec.Region == "" {
			continue
		}
		if seen[rec.Name] {
			continue
		}
		seen[rec.Name] = true

		rec.SKU = NormalizeSKU(rec.SKU)
		rec.Region = NormalizeRegion(rec.Region)
		rec.OS = NormalizeOS(rec.OS)
		rec.PowerState = ""
		if rec.HoursPerMonth <= 0 {
			rec.HoursPerMonth = defaultHours
		}
		out = append(out, rec)
	}

	if len(out) == 0 {
		return nil, ErrEmptyCatalog
	}
	return &Catalog{Resources: out}, nil
}

// isRunning accepts the inventory's "VM running" marker. An empty power
// state means the record came from an already-filtered catalog.
func isRunning(state string) bool {
	s := strings.ToLower(strings.TrimSpace(state))
	return s == "" || s == "vm running" || s == "running"
}

// NormalizeSKU trims and lowercases a SKU for lookup/cache keys. The two
// pricing sources disagree on casing, so keys are built from this form only.
func NormalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

// NormalizeRegion trims and lowercases a region name.
func NormalizeRegion(region string) string {
	return strings.ToLower(strings.TrimSpace(region))
}

// NormalizeOS maps the inventory's OS spellings onto OSLinux or OSWindows.
// Anything that is not recognizably Windows is treated as Linux, which is
// how the pricing sources themselves bucket meters.
func NormalizeOS(os string) string {
	s := strings.ToLower(strings.TrimSpace(os))
	if strings.Contains(s, "windows") {
		return OSWindows
	}
	return OSLinux
}
