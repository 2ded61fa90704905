package domain

// Scenario is the tagged outcome of classifying one batch's pending keywords
type Scenario int

const (
	// ScenarioEmpty has no pending rows left; handled like ScenarioFullyReady
	ScenarioEmpty Scenario = iota
	// ScenarioFullyReady has every outstanding keyword filled
	ScenarioFullyReady
	// ScenarioPartiallyReady has some keywords filled and some still live
	ScenarioPartiallyReady
	// ScenarioNoneReady has nothing filled and at least one keyword left to dispatch
	ScenarioNoneReady
	// ScenarioForced has every unfilled keyword already dispatched once; terminal
	ScenarioForced
)

var scenarioNames = map[Scenario]string{
	ScenarioEmpty:          "empty",
	ScenarioFullyReady:     "fully_ready",
	ScenarioPartiallyReady: "partially_ready",
	ScenarioNoneReady:      "none_ready",
	ScenarioForced:         "forced",
}

func (s Scenario) String() string {
	if name, ok := scenarioNames[s]; ok {
		return name
	}
	return "unknown"
}

// Closes reports whether the scenario always ends with the batch closed
func (s Scenario) Closes() bool {
	return s == ScenarioEmpty || s == ScenarioFullyReady || s == ScenarioForced
}
