package powerflex

import (
	"strings"

	"github.com/google/uuid"
)

// ForwardedHeader builds the Forwarded header value the CSI driver
// proxy sidecar sends with every array call. The proxy routes on it:
// "by" names the plugin, "for" carries the intended array endpoint and
// the system ID separated by a semicolon.
func ForwardedHeader(pluginID, endpoint, systemID string) string {
	return "by=" + pluginID + ",for=" + endpoint + ";" + systemID
}

// VolumeName returns a fresh array-safe volume name. The array rejects
// hyphens in names, so the UUID is flattened to 32 hex characters.
func VolumeName() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
