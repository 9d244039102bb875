package volstress

import (
	"context"
	"net/http"
	"time"
)

// User is one simulated user of a scenario. Data carries custom per-user
// state between loops (a generated volume name, an extracted id). Base
// headers set via SetBaseHeader are sent with every request of this user,
// which is how a persona carries its credentials through all its calls.
type User struct {
	Scenario                 string
	CurrentUser, CurrentLoop int
	HttpClient               *http.Client
	Disabled                 bool
	Data                     map[string]interface{}

	runner      *Runner
	ctx         context.Context
	baseHeaders map[string]string
}

// SetBaseHeader sets a header sent with every subsequent request of this
// user. A per-request header of the same name takes precedence.
func (user *User) SetBaseHeader(key, value string) *User {
	if user.baseHeaders == nil {
		user.baseHeaders = make(map[string]string)
	}
	user.baseHeaders[key] = value
	return user
}

func (user *User) ThinkTime(d time.Duration) *User {
	if user.Disabled {
		return user
	}
	sleepContext(user.context(), d)
	return user
}

func (user *User) ThinkTimeRandom(min, max time.Duration) *User {
	return user.ThinkTime(RandomDuration(min, max))
}

func (user *User) Step(name string) *Step {
	return &Step{
		Name: name,
		User: user,
		Expectation: &Expectation{
			SuccessPercentageAtLeast: &PercentageExpectation{Percentage: 0},
			FailurePercentageAtMost:  &PercentageExpectation{Percentage: 100},
			ErrorPercentageAtMost:    &PercentageExpectation{Percentage: 100},
			TimeoutPercentageAtMost:  &PercentageExpectation{Percentage: 100},
		},
	}
}

func (user *User) context() context.Context {
	if user.ctx != nil {
		return user.ctx
	}
	return context.Background()
}
