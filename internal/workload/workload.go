// Package workload defines the tenant volume scenarios that drive a
// PowerFlex array, or the authorization proxy in front of one, through
// the load engine. The four variants replay the request sequences of
// the CSI driver sidecar at tenant scale: bare creates, token-scoped
// creates, and full volume lifecycles in ordered and interleaved form.
package workload

import (
	"fmt"
	"strings"

	volstress "github.com/volstress/volstress/core"
	"github.com/volstress/volstress/internal/powerflex"
	"github.com/volstress/volstress/internal/tokens"
)

// Registrable scenario names.
const (
	ScenarioCreateFixed    = "tenant-create-fixed"
	ScenarioCreateTokened  = "tenant-create-tokened"
	ScenarioLifecycle      = "tenant-volume-lifecycle"
	ScenarioLifecycleMixed = "tenant-volume-lifecycle-mixed"
)

// The failure threshold differs per variant: the untokened create and
// the ordered lifecycle count any status from 400 up as a failure, the
// tokened create and the interleaved lifecycle only from 401 up and so
// tolerate quota-style rejections.
const (
	createFixedThreshold   = 400
	createTokenedThreshold = 401
	lifecycleThreshold     = 400
	mixedThreshold         = 401
)

// Per-step success expectations checked after a run.
const (
	minSuccessPercentage     = 95
	minBelowThresholdPercent = 95
)

// Keys into User.Data shared between OnStart and the loop runners.
const (
	dataVolumeName = "volumeName"
	dataVolumeID   = "volumeID"
	dataPoolID     = "storagePoolID"
	dataSdcID      = "sdcID"
	dataMapped     = "mapped"
)

// Config parameterizes every scenario. Target is the URL requests are
// sent to, typically the authorization proxy. IntendedEndpoint is the
// array endpoint named in the Forwarded header, which the proxy uses
// to pick the array behind it.
type Config struct {
	Target           string
	IntendedEndpoint string
	PluginID         string
	SystemID         string
	StoragePoolID    string
	StoragePoolName  string
	SdcID            string
	VolumeSizeKb     string
	TokensFile       string
	Load             volstress.LoadConfig
}

func (cfg Config) forwarded() string {
	return powerflex.ForwardedHeader(cfg.PluginID, cfg.IntendedEndpoint, cfg.SystemID)
}

// Names returns the registrable scenario names in definition order.
func Names() []string {
	return []string{
		ScenarioCreateFixed,
		ScenarioCreateTokened,
		ScenarioLifecycle,
		ScenarioLifecycleMixed,
	}
}

// Register adds the named scenarios to the runner. Scenarios that
// authenticate share one token pool loaded from cfg.TokensFile, so a
// token claimed by a user of one scenario is gone for all of them.
func Register(runner *volstress.Runner, cfg Config, names ...string) error {
	if len(names) == 0 {
		return fmt.Errorf("no scenarios selected, known: %s", strings.Join(Names(), ", "))
	}

	var pool *tokens.Pool
	sharedPool := func() (*tokens.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		p, err := tokens.FromFile(cfg.TokensFile)
		if err != nil {
			return nil, fmt.Errorf("loading token pool: %w", err)
		}
		pool = p
		return pool, nil
	}

	for _, name := range names {
		var scenario *volstress.Scenario
		switch name {
		case ScenarioCreateFixed:
			scenario = newCreateFixed(cfg)
		case ScenarioCreateTokened:
			p, err := sharedPool()
			if err != nil {
				return err
			}
			scenario = newCreateTokened(cfg, p)
		case ScenarioLifecycle:
			p, err := sharedPool()
			if err != nil {
				return err
			}
			scenario = newLifecycle(cfg, p)
		case ScenarioLifecycleMixed:
			p, err := sharedPool()
			if err != nil {
				return err
			}
			scenario = newLifecycleMixed(cfg, p)
		default:
			return fmt.Errorf("unknown scenario %q, known: %s", name, strings.Join(Names(), ", "))
		}
		if err := runner.AddScenario(scenario); err != nil {
			return err
		}
	}
	return nil
}
