package workload

import (
	"errors"
	"fmt"
	"net/http"

	volstress "github.com/volstress/volstress/core"
	"github.com/volstress/volstress/internal/powerflex"
	"github.com/volstress/volstress/internal/tokens"
)

// Tasks the interleaved variant picks from.
const (
	taskCreate = "create"
	taskQuery  = "query"
	taskRead   = "read"
	taskMap    = "map"
	taskUnmap  = "unmap"
	taskRemove = "remove"
)

func newLifecycle(cfg Config, pool *tokens.Pool) *volstress.Scenario {
	return &volstress.Scenario{
		Title:       ScenarioLifecycle,
		Description: "each tenant cycles one uniquely named volume through create, query, read, map, unmap and remove",
		OnStart:     lifecycleStart(cfg, pool, lifecycleThreshold),
		Runner:      lifecycleRunner(cfg),
		LoadConfig:  cfg.Load,
	}
}

func newLifecycleMixed(cfg Config, pool *tokens.Pool) *volstress.Scenario {
	return &volstress.Scenario{
		Title:       ScenarioLifecycleMixed,
		Description: "each tenant runs one randomly picked lifecycle task per loop, guarded by its volume state",
		OnStart:     lifecycleStart(cfg, pool, mixedThreshold),
		Runner:      lifecycleMixedRunner(cfg),
		LoadConfig:  cfg.Load,
	}
}

// lifecycleStart claims a token, names the user's volume and resolves
// the storage pool and SDC the loops will use. Any miss disables the
// user; the claimed token stays consumed.
func lifecycleStart(cfg Config, pool *tokens.Pool, threshold int) func(user *volstress.User) error {
	return func(user *volstress.User) error {
		token, ok := pool.Next()
		if !ok {
			return errors.New("token pool exhausted")
		}
		user.SetBaseHeader("Authorization", "Bearer "+token)
		user.SetBaseHeader("Forwarded", cfg.forwarded())
		user.Data[dataVolumeName] = powerflex.VolumeName()

		response := user.Step("resolve storage pool").
			Request(http.MethodGet, cfg.Target+powerflex.StoragePoolsPath).
			Send().
			AssertStatusCodeBelow(threshold).
			ArchiveStats()
		if response.ConsideredUnsuccessful() {
			return errors.New("resolving the storage pool failed")
		}
		poolID := response.ExtractFirstStringFromJSON(fmt.Sprintf("$[?@.name==%q].id", cfg.StoragePoolName))
		if poolID == "" {
			return fmt.Errorf("storage pool %q not found", cfg.StoragePoolName)
		}
		user.Data[dataPoolID] = poolID

		response = user.Step("discover sdc").
			Request(http.MethodGet, cfg.Target+powerflex.SdcRelationshipsPath(cfg.SystemID)).
			Send().
			AssertStatusCodeBelow(threshold).
			ArchiveStats()
		if response.ConsideredUnsuccessful() {
			return errors.New("discovering SDCs failed")
		}
		sdcID := response.ExtractStringFromJSON("$[0].id")
		if sdcID == "" {
			sdcID = cfg.SdcID
		}
		if sdcID == "" {
			return errors.New("no SDC connected to the system and no fallback configured")
		}
		user.Data[dataSdcID] = sdcID
		return nil
	}
}

// lifecycleRunner issues the full ordered sequence once per loop. A
// failed or errored step aborts the remainder of the sequence; the
// next loop starts over with the same volume name.
func lifecycleRunner(cfg Config) func(user *volstress.User) {
	return func(user *volstress.User) {
		name, _ := user.Data[dataVolumeName].(string)
		poolID, _ := user.Data[dataPoolID].(string)
		sdcID, _ := user.Data[dataSdcID].(string)
		if name == "" || poolID == "" || sdcID == "" {
			return
		}

		response := createVolume(user, cfg, name, poolID, lifecycleThreshold)
		if response.ConsideredUnsuccessful() {
			return
		}
		volumeID := response.ExtractStringFromJSON("$.id")

		response = queryVolumeID(user, cfg, name, lifecycleThreshold)
		if response.ConsideredUnsuccessful() {
			return
		}
		if id := response.ExtractStringFromJSON("$.id"); id != "" {
			volumeID = id
		}
		if volumeID == "" {
			return
		}

		if readVolume(user, cfg, volumeID, lifecycleThreshold).ConsideredUnsuccessful() {
			return
		}
		if mapVolume(user, cfg, volumeID, sdcID, lifecycleThreshold).ConsideredUnsuccessful() {
			return
		}
		if unmapVolume(user, cfg, volumeID, sdcID, lifecycleThreshold).ConsideredUnsuccessful() {
			return
		}
		removeVolume(user, cfg, volumeID, lifecycleThreshold)
	}
}

// lifecycleMixedRunner issues one task per loop, picked at random from
// the ones the user's volume state allows. Create runs when no volume
// is live, remove clears the state so a later pick recreates.
func lifecycleMixedRunner(cfg Config) func(user *volstress.User) {
	return func(user *volstress.User) {
		name, _ := user.Data[dataVolumeName].(string)
		poolID, _ := user.Data[dataPoolID].(string)
		sdcID, _ := user.Data[dataSdcID].(string)
		if name == "" || poolID == "" || sdcID == "" {
			return
		}
		volumeID, _ := user.Data[dataVolumeID].(string)
		mapped, _ := user.Data[dataMapped].(bool)

		var choices []string
		switch {
		case volumeID == "":
			choices = []string{taskCreate}
		case mapped:
			choices = []string{taskRead, taskUnmap}
		default:
			choices = []string{taskQuery, taskRead, taskMap, taskRemove}
		}

		switch volstress.RandomElement(choices) {
		case taskCreate:
			response := createVolume(user, cfg, name, poolID, mixedThreshold)
			if response.ConsideredUnsuccessful() {
				return
			}
			if id := response.ExtractStringFromJSON("$.id"); id != "" {
				user.Data[dataVolumeID] = id
			}
		case taskQuery:
			response := queryVolumeID(user, cfg, name, mixedThreshold)
			if response.ConsideredUnsuccessful() {
				return
			}
			if id := response.ExtractStringFromJSON("$.id"); id != "" {
				user.Data[dataVolumeID] = id
			}
		case taskRead:
			readVolume(user, cfg, volumeID, mixedThreshold)
		case taskMap:
			if !mapVolume(user, cfg, volumeID, sdcID, mixedThreshold).ConsideredUnsuccessful() {
				user.Data[dataMapped] = true
			}
		case taskUnmap:
			if !unmapVolume(user, cfg, volumeID, sdcID, mixedThreshold).ConsideredUnsuccessful() {
				user.Data[dataMapped] = false
			}
		case taskRemove:
			if !removeVolume(user, cfg, volumeID, mixedThreshold).ConsideredUnsuccessful() {
				delete(user.Data, dataVolumeID)
				user.Data[dataMapped] = false
			}
		}
	}
}

func createVolume(user *volstress.User, cfg Config, name, poolID string, threshold int) *volstress.Response {
	return user.Step("create volume").
		ExpectSuccessPercentageAtLeast(minSuccessPercentage).
		ExpectStatusCodeBelowPercentageAtLeast(threshold, minBelowThresholdPercent).
		Request(http.MethodPost, cfg.Target+powerflex.VolumesPath).
		SetJSONBody(powerflex.CreateVolumeRequest{
			VolumeSizeInKb: cfg.VolumeSizeKb,
			StoragePoolID:  poolID,
			Name:           name,
		}).
		Send().
		AssertStatusCodeBelow(threshold).
		ArchiveStats()
}

func queryVolumeID(user *volstress.User, cfg Config, name string, threshold int) *volstress.Response {
	return user.Step("query volume id").
		ExpectSuccessPercentageAtLeast(minSuccessPercentage).
		Request(http.MethodPost, cfg.Target+powerflex.QueryIDByKeyPath).
		SetJSONBody(powerflex.QueryIDByKeyRequest{Name: name}).
		Send().
		AssertStatusCodeBelow(threshold).
		ArchiveStats()
}

func readVolume(user *volstress.User, cfg Config, volumeID string, threshold int) *volstress.Response {
	return user.Step("read volume").
		ExpectSuccessPercentageAtLeast(minSuccessPercentage).
		Request(http.MethodGet, cfg.Target+powerflex.VolumePath(volumeID)).
		Send().
		AssertStatusCodeBelow(threshold).
		ArchiveStats()
}

func mapVolume(user *volstress.User, cfg Config, volumeID, sdcID string, threshold int) *volstress.Response {
	return user.Step("map volume to sdc").
		ExpectSuccessPercentageAtLeast(minSuccessPercentage).
		Request(http.MethodPost, cfg.Target+powerflex.VolumeActionPath(volumeID, powerflex.ActionAddMappedSdc)).
		SetJSONBody(powerflex.AddMappedSdcRequest{
			SdcID:                 sdcID,
			AllowMultipleMappings: "false",
		}).
		Send().
		AssertStatusCodeBelow(threshold).
		ArchiveStats()
}

func unmapVolume(user *volstress.User, cfg Config, volumeID, sdcID string, threshold int) *volstress.Response {
	return user.Step("unmap volume from sdc").
		ExpectSuccessPercentageAtLeast(minSuccessPercentage).
		Request(http.MethodPost, cfg.Target+powerflex.VolumeActionPath(volumeID, powerflex.ActionRemoveMappedSdc)).
		SetJSONBody(powerflex.RemoveMappedSdcRequest{SdcID: sdcID}).
		Send().
		AssertStatusCodeBelow(threshold).
		ArchiveStats()
}

func removeVolume(user *volstress.User, cfg Config, volumeID string, threshold int) *volstress.Response {
	return user.Step("remove volume").
		ExpectSuccessPercentageAtLeast(minSuccessPercentage).
		Request(http.MethodPost, cfg.Target+powerflex.VolumeActionPath(volumeID, powerflex.ActionRemoveVolume)).
		SetJSONBody(powerflex.RemoveVolumeRequest{RemoveMode: powerflex.RemoveModeOnlyMe}).
		Send().
		AssertStatusCodeBelow(threshold).
		ArchiveStats()
}
