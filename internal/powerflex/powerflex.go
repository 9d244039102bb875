// Package powerflex holds the small slice of the PowerFlex (VxFlex OS)
// REST surface that the workload scenarios exercise: endpoint paths,
// request payloads and the response shapes the scenarios extract values
// from. It is not a full array client.
package powerflex

// Fixed endpoints of the array API.
const (
	LoginPath        = "/api/login"
	VersionPath      = "/api/version"
	VolumesPath      = "/api/types/Volume/instances/"
	QueryIDByKeyPath = "/api/types/Volume/instances/action/queryIdByKey/"
	StoragePoolsPath = "/api/types/StoragePool/instances/"
)

// Actions accepted on a volume instance.
const (
	ActionAddMappedSdc    = "addMappedSdc"
	ActionRemoveMappedSdc = "removeMappedSdc"
	ActionRemoveVolume    = "removeVolume"
)

// RemoveModeOnlyMe removes only the addressed volume, never its
// descendant snapshots.
const RemoveModeOnlyMe = "ONLY_ME"

// VolumePath returns the instance path of a volume.
func VolumePath(id string) string {
	return "/api/instances/Volume::" + id + "/"
}

// VolumeActionPath returns the action path of a volume instance.
func VolumeActionPath(id, action string) string {
	return "/api/instances/Volume::" + id + "/action/" + action + "/"
}

// SdcRelationshipsPath returns the path listing the SDCs connected to a
// system.
func SdcRelationshipsPath(systemID string) string {
	return "/api/instances/System::" + systemID + "/relationships/Sdc/"
}
