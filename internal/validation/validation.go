// Package validation provides input validation utilities.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// packageNamePattern allows the characters distribution package
	// names actually use: alphanumeric, plus, hyphen, dot, underscore.
	packageNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9+._-]*$`)

	// bdfPattern matches an extended PCI bus:device.function address,
	// e.g. 0000:01:00.0.
	bdfPattern = regexp.MustCompile(`^[0-9a-fA-F]{4}:[0-9a-fA-F]{2}:[0-9a-fA-F]{2}\.[0-7]$`)

	// kernelArgPattern matches a single kernel command-line argument,
	// optionally with a value (e.g. intel_iommu=on, iommu=pt).
	kernelArgPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*(?:=[a-zA-Z0-9_.,:-]+)?$`)

	// pciIDPattern matches a 4-digit hex vendor or device ID.
	pciIDPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{4}$`)

	// Dangerous characters that should never appear in values passed
	// to external tools.
	dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r", " "}
)

// ValidatePackageName validates a distribution package name before it
// is passed to the package manager.
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("package name cannot be empty")
	}

	if len(name) > 255 {
		return fmt.Errorf("package name too long (max 255 characters)")
	}

	if strings.ContainsRune(name, '\x00') {
		return fmt.Errorf("package name contains null byte")
	}

	for _, char := range dangerousChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("package name contains invalid character: %q", char)
		}
	}

	if !packageNamePattern.MatchString(name) {
		return fmt.Errorf("invalid package name format: must contain only alphanumeric characters, plus, hyphens, underscores, and dots")
	}

	return nil
}

// ValidateBDF validates an extended PCI address (domain:bus:device.function).
func ValidateBDF(bdf string) error {
	if bdf == "" {
		return fmt.Errorf("PCI address cannot be empty")
	}

	if !bdfPattern.MatchString(bdf) {
		return fmt.Errorf("invalid PCI address %q: expected dddd:bb:dd.f (e.g. 0000:01:00.0)", bdf)
	}

	return nil
}

// ValidateKernelArg validates a single kernel command-line argument
// before it is written into the boot configuration.
func ValidateKernelArg(arg string) error {
	if arg == "" {
		return fmt.Errorf("kernel argument cannot be empty")
	}

	if strings.ContainsRune(arg, '\x00') {
		return fmt.Errorf("kernel argument contains null byte")
	}

	for _, char := range dangerousChars {
		if strings.Contains(arg, char) {
			return fmt.Errorf("kernel argument contains invalid character: %q", char)
		}
	}

	if !kernelArgPattern.MatchString(arg) {
		return fmt.Errorf("invalid kernel argument format: %q", arg)
	}

	return nil
}

// ValidatePCIID validates a 4-digit hex PCI vendor or device ID.
func ValidatePCIID(id string) error {
	if !pciIDPattern.MatchString(id) {
		return fmt.Errorf("invalid PCI ID %q: expected 4 hex digits", id)
	}
	return nil
}
