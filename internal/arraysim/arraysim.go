// Package arraysim is an in-memory PowerFlex array that stands in for
// real hardware during workload development and in tests. It keeps
// actual volume state, so a full create, query, map, unmap and remove
// sequence behaves like it would against an array, minus the latency.
package arraysim

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/volstress/volstress/internal/powerflex"
)

// Fixed inventory every simulator instance starts with.
const (
	SystemID           = "7045c4cc20dffc0f"
	StoragePoolID      = "dcc71b0500000000"
	StoragePoolName    = "mypool"
	ProtectionDomainID = "ed1efbd300000000"
	SdcID              = "6e9a24be00000001"

	sdcName    = "sdc-1"
	sdcIP      = "10.247.66.201"
	apiVersion = "3.5"
)

// Volume IDs are assigned sequentially from this base.
const volumeIDBase uint64 = 0x8aac260c00000000

const volumeInstancePrefix = "/api/instances/Volume::"

// Simulator is an http.Handler serving the slice of the PowerFlex REST
// API the workload scenarios touch. Safe for concurrent use.
type Simulator struct {
	log *logrus.Entry

	lock     sync.Mutex
	nextID   uint64
	byID     map[string]*powerflex.Volume
	idByName map[string]string
	logins   uint64
}

// New returns a simulator with the fixed inventory and no volumes.
func New(log *logrus.Entry) *Simulator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Simulator{
		log:      log,
		nextID:   volumeIDBase + 1,
		byID:     make(map[string]*powerflex.Volume),
		idByName: make(map[string]string),
	}
}

// VolumeCount returns the number of volumes currently provisioned.
func (s *Simulator) VolumeCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.byID)
}

func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Debug("array request")

	path := r.URL.Path
	switch {
	case path == powerflex.LoginPath:
		s.handleLogin(w, r)
	case path == powerflex.VersionPath:
		s.handleVersion(w, r)
	case path == powerflex.QueryIDByKeyPath:
		s.handleQueryIDByKey(w, r)
	case path == powerflex.VolumesPath:
		s.handleCreateVolume(w, r)
	case path == powerflex.StoragePoolsPath:
		s.handleStoragePools(w, r)
	case path == powerflex.SdcRelationshipsPath(SystemID):
		s.handleSdcRelationships(w, r)
	case strings.HasPrefix(path, volumeInstancePrefix):
		s.handleVolumeInstance(w, r)
	default:
		s.writeError(w, http.StatusNotFound, "Unknown route: "+path)
	}
}

func (s *Simulator) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.lock.Lock()
	s.logins++
	session := fmt.Sprintf("session-%016x", s.logins)
	s.lock.Unlock()
	s.writeJSON(w, session)
}

func (s *Simulator) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, apiVersion)
}

func (s *Simulator) handleCreateVolume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req powerflex.CreateVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "volume name is required")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if _, exists := s.idByName[req.Name]; exists {
		s.writeError(w, http.StatusInternalServerError, "Volume name already in use. Please use a different name.")
		return
	}
	volume := &powerflex.Volume{
		ID:            fmt.Sprintf("%016x", s.nextID),
		Name:          req.Name,
		StoragePoolID: req.StoragePoolID,
	}
	s.nextID++
	s.byID[volume.ID] = volume
	s.idByName[volume.Name] = volume.ID
	s.writeJSON(w, volume)
}

func (s *Simulator) handleQueryIDByKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req powerflex.QueryIDByKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	id, ok := s.idByName[req.Name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "Could not find the volume")
		return
	}
	s.writeJSON(w, struct {
		ID string `json:"id"`
	}{ID: id})
}

func (s *Simulator) handleStoragePools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, []powerflex.StoragePool{{
		ID:                 StoragePoolID,
		Name:               StoragePoolName,
		MediaType:          "HDD",
		ProtectionDomainID: ProtectionDomainID,
	}})
}

func (s *Simulator) handleSdcRelationships(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, []powerflex.Sdc{{
		ID:       SdcID,
		Name:     sdcName,
		SdcIP:    sdcIP,
		SystemID: SystemID,
	}})
}

func (s *Simulator) handleVolumeInstance(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, volumeInstancePrefix)
	rest = strings.TrimSuffix(rest, "/")

	if id, action, found := strings.Cut(rest, "/action/"); found {
		s.handleVolumeAction(w, r, id, action)
		return
	}

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	volume, ok := s.byID[rest]
	if !ok {
		s.writeError(w, http.StatusNotFound, "Could not find the volume")
		return
	}
	s.writeJSON(w, volume)
}

func (s *Simulator) handleVolumeAction(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	volume, ok := s.byID[id]
	if !ok {
		s.writeError(w, http.StatusNotFound, "Could not find the volume")
		return
	}

	switch action {
	case powerflex.ActionAddMappedSdc:
		var req powerflex.AddMappedSdcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if req.SdcID != SdcID {
			s.writeError(w, http.StatusInternalServerError, "Could not find the SDC")
			return
		}
		for _, mapped := range volume.MappedSdcIDs {
			if mapped == req.SdcID {
				s.writeError(w, http.StatusInternalServerError, "The volume is already mapped to the SDC")
				return
			}
		}
		volume.MappedSdcIDs = append(volume.MappedSdcIDs, req.SdcID)
		s.writeJSON(w, struct{}{})
	case powerflex.ActionRemoveMappedSdc:
		var req powerflex.RemoveMappedSdcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		for i, mapped := range volume.MappedSdcIDs {
			if mapped == req.SdcID {
				volume.MappedSdcIDs = append(volume.MappedSdcIDs[:i], volume.MappedSdcIDs[i+1:]...)
				s.writeJSON(w, struct{}{})
				return
			}
		}
		s.writeError(w, http.StatusInternalServerError, "The volume is not mapped to the SDC")
	case powerflex.ActionRemoveVolume:
		var req powerflex.RemoveVolumeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if len(volume.MappedSdcIDs) > 0 {
			s.writeError(w, http.StatusInternalServerError, "The volume is mapped to an SDC and cannot be removed")
			return
		}
		delete(s.byID, volume.ID)
		delete(s.idByName, volume.Name)
		s.writeJSON(w, struct{}{})
	default:
		s.writeError(w, http.StatusNotFound, "Unknown volume action: "+action)
	}
}

func (s *Simulator) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("encoding response")
	}
}

func (s *Simulator) writeError(w http.ResponseWriter, status int, message string) {
	s.log.WithFields(logrus.Fields{
		"status":  status,
		"message": message,
	}).Debug("array error response")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := powerflex.APIError{
		Message:        message,
		HTTPStatusCode: status,
		ErrorCode:      status,
	}
	if err := json.NewEncoder(w).Encode(&body); err != nil {
		s.log.WithError(err).Error("encoding error response")
	}
}
