package workload

import (
	"errors"
	"net/http"

	volstress "github.com/volstress/volstress/core"
	"github.com/volstress/volstress/internal/powerflex"
	"github.com/volstress/volstress/internal/tokens"
)

// personaVolumeName alternates the two tenant personas across users.
// Both personas reuse their fixed volume name every loop, so past the
// first create the array keeps answering with name collisions.
func personaVolumeName(currentUser int) string {
	if currentUser%2 == 1 {
		return "TenantAVol"
	}
	return "TenantBVol"
}

func newCreateFixed(cfg Config) *volstress.Scenario {
	return &volstress.Scenario{
		Title:       ScenarioCreateFixed,
		Description: "two tenant personas create fixed-name volumes through the proxy without authenticating",
		OnStart: func(user *volstress.User) error {
			user.SetBaseHeader("Forwarded", cfg.forwarded())
			return nil
		},
		Runner: func(user *volstress.User) {
			user.Step("create volume unauthenticated").
				ExpectSuccessPercentageAtLeast(minSuccessPercentage).
				ExpectStatusCodeBelowPercentageAtLeast(createFixedThreshold, minBelowThresholdPercent).
				Request(http.MethodPost, cfg.Target+powerflex.VolumesPath).
				SetJSONBody(powerflex.CreateVolumeRequest{
					VolumeSizeInKb: cfg.VolumeSizeKb,
					StoragePoolID:  cfg.StoragePoolID,
					Name:           personaVolumeName(user.CurrentUser),
				}).
				Send().
				AssertStatusCodeBelow(createFixedThreshold).
				ArchiveStats()
		},
		LoadConfig: cfg.Load,
	}
}

func newCreateTokened(cfg Config, pool *tokens.Pool) *volstress.Scenario {
	return &volstress.Scenario{
		Title:       ScenarioCreateTokened,
		Description: "token-scoped tenants create fixed-name volumes through the proxy",
		OnStart: func(user *volstress.User) error {
			token, ok := pool.Next()
			if !ok {
				return errors.New("token pool exhausted")
			}
			user.SetBaseHeader("Authorization", "Bearer "+token)
			user.SetBaseHeader("Forwarded", cfg.forwarded())
			return nil
		},
		Runner: func(user *volstress.User) {
			user.Step("create volume as tenant").
				ExpectSuccessPercentageAtLeast(minSuccessPercentage).
				ExpectStatusCodeBelowPercentageAtLeast(createTokenedThreshold, minBelowThresholdPercent).
				Request(http.MethodPost, cfg.Target+powerflex.VolumesPath).
				SetJSONBody(powerflex.CreateVolumeRequest{
					VolumeSizeInKb: cfg.VolumeSizeKb,
					StoragePoolID:  cfg.StoragePoolID,
					Name:           personaVolumeName(user.CurrentUser),
				}).
				Send().
				AssertStatusCodeBelow(createTokenedThreshold).
				ArchiveStats()
		},
		LoadConfig: cfg.Load,
	}
}
