package pipeline

// State はオーケストレーターの状態です。
type State int

const (
	StateIdle State = iota
	StateDescribing
	StateBuildingPrompt
	StateGeneratingCharacter
	StateCharacterReady
	StateGeneratingPanel
	StatePanelReady
	StateErrored
)

var stateNames = map[State]string{
	StateIdle:                "idle",
	StateDescribing:          "describing",
	StateBuildingPrompt:      "building-prompt",
	StateGeneratingCharacter: "generating-character",
	StateCharacterReady:      "character-ready",
	StateGeneratingPanel:     "generating-panel",
	StatePanelReady:          "panel-ready",
	StateErrored:             "errored",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// InFlight は外部呼び出し中の状態かどうかを返します。
func (s State) InFlight() bool {
	switch s {
	case StateDescribing, StateBuildingPrompt, StateGeneratingCharacter, StateGeneratingPanel:
		return true
	}
	return false
}
