package powerflex

// CreateVolumeRequest is the body of a volume create call. The array
// expects the size as a string of kilobytes.
type CreateVolumeRequest struct {
	VolumeSizeInKb string `json:"volumeSizeInKb"`
	StoragePoolID  string `json:"storagePoolId"`
	Name           string `json:"name"`
}

// QueryIDByKeyRequest resolves a volume name to its ID.
type QueryIDByKeyRequest struct {
	Name string `json:"name"`
}

// AddMappedSdcRequest maps a volume to an SDC. AllowMultipleMappings is
// a stringly-typed boolean on the wire.
type AddMappedSdcRequest struct {
	SdcID                 string `json:"sdcId"`
	AllowMultipleMappings string `json:"allowMultipleMappings"`
}

// RemoveMappedSdcRequest unmaps a volume from an SDC.
type RemoveMappedSdcRequest struct {
	SdcID string `json:"sdcId"`
}

// RemoveVolumeRequest deletes a volume. See RemoveModeOnlyMe.
type RemoveVolumeRequest struct {
	RemoveMode string `json:"removeMode"`
}

// Volume is the subset of the array's volume resource the scenarios
// read back.
type Volume struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	StoragePoolID string   `json:"storagePoolId"`
	MappedSdcIDs  []string `json:"mappedSdcIds,omitempty"`
}

// StoragePool is the subset of the array's storage pool resource the
// scenarios read back.
type StoragePool struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	MediaType          string `json:"mediaType"`
	ProtectionDomainID string `json:"protectionDomainId"`
}

// Sdc is the subset of the array's SDC resource the scenarios read
// back.
type Sdc struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SdcIP    string `json:"sdcIp"`
	SystemID string `json:"systemId"`
}

// APIError is the error body the array returns alongside non-2xx
// statuses.
type APIError struct {
	Message        string `json:"message"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	ErrorCode      int    `json:"errorCode"`
}

func (e APIError) Error() string {
	return e.Message
}
