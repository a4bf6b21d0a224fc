package board

// Seed is the board the hub starts with when no other seed is configured.
func Seed() State {
	return State{
		Boards: map[string]Board{
			"0": {Name: "Winds"},
			"1": {Name: "Anchors"},
			"2": {Name: "Action Items"},
		},
		Notes: NoteMap{
			"1": {ID: "1", Label: "Unidirectional Dataflow!", Pos: Position{X: 100, Y: 100}},
		},
	}
}
