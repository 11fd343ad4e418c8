package model

import (
    "fmt"
    "math"
)

// Plan keys.
const (
    PlanFree    = "free"
    PlanStarter = "starter"
    PlanPro     = "pro"
)

// Plan describes the quota attached to a subscription tier. Unlimited caps
// are math.MaxInt. LifetimeCreateLimit is only enforced for the free plan.
type Plan struct {
    Key                 string `json:"key"`
    ActiveVehicleLimit  int    `json:"activeVehicleLimit"`
    LifetimeCreateLimit int    `json:"lifetimeCreateLimit"`
}

var plans = map[string]Plan{
    PlanFree:    {Key: PlanFree, ActiveVehicleLimit: 2, LifetimeCreateLimit: 2},
    PlanStarter: {Key: PlanStarter, ActiveVehicleLimit: 5, LifetimeCreateLimit: math.MaxInt},
    PlanPro:     {Key: PlanPro, ActiveVehicleLimit: math.MaxInt, LifetimeCreateLimit: math.MaxInt},
}

// PlanFor returns the plan for key; unknown or empty keys get the free plan.
func PlanFor(key string) Plan {
    if p, ok := plans[key]; ok {
        return p
    }
    return plans[PlanFree]
}

// Unlimited reports whether the plan has no active cap.
func (p Plan) Unlimited() bool { return p.ActiveVehicleLimit == math.MaxInt }

// LimitLabel renders the active cap for user-facing messages.
func (p Plan) LimitLabel() string {
    if p.Unlimited() {
        return "unlimited"
    }
    return fmt.Sprintf("%d", p.ActiveVehicleLimit)
}
