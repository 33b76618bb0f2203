package contract

import (
	"os"

	"github.com/fatih/color"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// Color variables for console output.
var (
	HighRiskColor   = color.New(color.FgRed, color.Bold) // highRiskColor represents standard danger.
	MediumRiskColor = color.New(color.FgYellow)          // mediumRiskColor represents standard caution.
	LowRiskColor    = color.New(color.FgCyan)            // lowRiskColor represents informational signal.
	WeakRiskColor   = color.New(color.Faint)             // weakRiskColor marks low-evidence categories.
)

// GetColorCategory returns a colored risk category label for console
// output. The plain category string is used for JSON and parquet.
func GetColorCategory(cat schema.RiskCategory) string {
	switch cat {
	case schema.HighRisk:
		return HighRiskColor.Sprint(string(cat))
	case schema.MediumRisk:
		return MediumRiskColor.Sprint(string(cat))
	case schema.LowRisk:
		return LowRiskColor.Sprint(string(cat))
	default:
		return WeakRiskColor.Sprint(string(cat))
	}
}

// SelectOutputFile returns the appropriate file handle for output, based
// on the provided file path. It falls back to os.Stdout for empty paths.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// TruncateDeviceID shortens a device identifier for table output.
func TruncateDeviceID(id schema.DeviceID, maxLen int) string {
	s := string(id)
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
