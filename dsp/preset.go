package dsp

import "fmt"

// ParamValue is one named parameter setting in a preset.
type ParamValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// BlockState is the persisted form of a block.
type BlockState struct {
	Type   string       `json:"type"`
	Active bool         `json:"active"`
	Params []ParamValue `json:"params,omitempty"`
}

// Snapshot captures the type, active flag and parameter values of b.
func Snapshot(b Block) BlockState {
	desc := b.Params()
	st := BlockState{
		Type:   b.TypeName(),
		Active: b.Active(),
		Params: make([]ParamValue, 0, len(desc)),
	}
	for i, d := range desc {
		v, _ := b.Param(i)
		st.Params = append(st.Params, ParamValue{Name: d.Name, Value: v})
	}
	return st
}

// Snapshot captures every block of the chain in order.
func (c *Chain) Snapshot() []BlockState {
	blocks := c.cur.Load().blocks
	states := make([]BlockState, len(blocks))
	for i, b := range blocks {
		states[i] = Snapshot(b)
	}
	return states
}

// Restore builds blocks from saved states. Parameters are matched by name;
// names the block does not know are ignored.
func Restore(states []BlockState, sampleRate float64) ([]Block, error) {
	blocks := make([]Block, 0, len(states))
	for i, st := range states {
		b, err := New(st.Type, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		for _, p := range st.Params {
			if idx := ParamIndex(b, p.Name); idx >= 0 {
				b.SetParam(idx, p.Value)
			}
		}
		b.SetActive(st.Active)
		blocks = append(blocks, b)
	}
	return blocks, nil
}
